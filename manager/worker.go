package manager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/zsiec/moqclient/internal/telemetry"
	"github.com/zsiec/moqclient/session"
)

// worker owns one subscription's consumption loop: it subscribes to a
// track, pumps its frames into the caller's callback, and on a transient
// failure re-subscribes after retryInterval until its context is
// canceled. This is the manager's per-subscription unit from the
// reconciliation algorithm.
type worker struct {
	trackName     string
	cb            DataCallback
	bc            *session.BroadcastConsumer
	retryInterval time.Duration
	log           *slog.Logger

	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

func startWorker(ctx context.Context, bc *session.BroadcastConsumer, trackName string, priority byte, cb DataCallback, retryInterval time.Duration, log *slog.Logger) *worker {
	wctx, cancel := context.WithCancel(ctx)
	w := &worker{
		trackName:     trackName,
		cb:            cb,
		bc:            bc,
		retryInterval: retryInterval,
		log:           log,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	w.running.Store(true)
	go w.run(wctx, priority)
	return w
}

func (w *worker) run(ctx context.Context, priority byte) {
	defer close(w.done)
	defer w.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		tc := w.bc.SubscribeTrack(w.trackName, priority)
		err := w.pump(ctx, tc)
		tc.Close()

		if err == nil || errors.Is(err, context.Canceled) {
			return
		}

		w.log.Warn("subscription interrupted, retrying", "track", w.trackName, "error", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryInterval):
		}
	}
}

func (w *worker) pump(ctx context.Context, tc *session.TrackConsumer) error {
	rec := telemetry.NewRecorder(w.trackName)
	for {
		g, err := tc.NextGroup(ctx)
		if err != nil {
			return err
		}
		frames := 0
		for {
			frame, err := g.ReadFrame()
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			frames++
			safeInvoke(w.log, func() { w.cb(w.trackName, frame) })
		}
		rec.FramesReceived(frames)
	}
}

// stop cancels the worker and waits for its goroutine to exit.
func (w *worker) stop() {
	w.cancel()
	<-w.done
}

// isRunning reports whether the worker's pump loop is still active.
func (w *worker) isRunning() bool {
	return w.running.Load()
}
