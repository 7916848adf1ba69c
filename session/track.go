package session

import (
	"context"
	"io"
	"sync"

	"github.com/zsiec/moqclient/wire"
)

// TrackProducer creates groups for one track of a published broadcast.
// CreateGroup is the only way to obtain a GroupProducer; creating a new
// group implicitly finishes whatever group preceded it.
type TrackProducer struct {
	session  *Session
	path     string
	name     string
	priority byte
	trackID  uint64 // the track_id this producer announces in SUBSCRIBE_OK and writes on group streams

	mu            sync.Mutex
	current       *GroupProducer
	hasSubscriber bool
}

// Name returns the track's name within its broadcast.
func (t *TrackProducer) Name() string { return t.name }

// Priority returns the track's priority (0 highest). It orders this
// track's outgoing group-stream opens relative to the session's other
// tracks in the stream multiplexer's groupScheduler.
func (t *TrackProducer) Priority() byte { return t.priority }

// CreateGroup finishes the current group, if any, and begins a new one at
// the given sequence number. While no peer has subscribed to this track,
// the returned GroupProducer discards writes instead of opening a stream,
// so producers never have to poll subscriber state before writing.
func (t *TrackProducer) CreateGroup(ctx context.Context, sequence uint64) (*GroupProducer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current != nil {
		t.current.Finish()
	}

	if !t.hasSubscriber {
		gp := &GroupProducer{seq: sequence, stream: nopSink{}}
		t.current = gp
		return gp, nil
	}

	trackID := t.trackID
	gp, err := t.session.groupSched.submit(t.priority, func() (*GroupProducer, error) {
		stream, err := t.session.conn.OpenUniStreamSync(ctx)
		if err != nil {
			return nil, err
		}
		if err := wire.WriteGroupHeader(stream, wire.GroupHeader{TrackID: trackID, GroupSequence: sequence}); err != nil {
			stream.Close()
			return nil, err
		}
		return &GroupProducer{seq: sequence, stream: stream}, nil
	})
	if err != nil {
		return nil, err
	}

	t.current = gp
	return gp, nil
}

func (t *TrackProducer) setSubscribed(subscribed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hasSubscriber = subscribed
}

// TrackConsumer yields groups for a subscribed track in the order they
// arrive. A subscribe_track call that the peer never confirms, or that it
// rejects, leaves the TrackConsumer live but silent: NextGroup simply never
// returns, until the caller's context is canceled or Close is called.
type TrackConsumer struct {
	id      uint64 // local, session-scoped identity distinct from the peer's wire track_id
	name    string
	session *Session

	groups chan *GroupConsumer
	done   chan struct{}
	cancel context.CancelFunc

	closeOnce sync.Once
}

// ID returns the consumer's local, monotonically assigned identity. Each
// SubscribeTrack call on a session returns a consumer with an ID distinct
// from every other track consumer created on that session, regardless of
// whatever track_id the remote peer ultimately assigns on the wire.
func (t *TrackConsumer) ID() uint64 { return t.id }

// Name returns the subscribed track's name.
func (t *TrackConsumer) Name() string { return t.name }

// NextGroup blocks until a new group arrives, the subscription ends
// (io.EOF), or ctx is done.
func (t *TrackConsumer) NextGroup(ctx context.Context) (*GroupConsumer, error) {
	select {
	case g, ok := <-t.groups:
		if !ok {
			return nil, io.EOF
		}
		return g, nil
	case <-t.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops local delivery for the subscription and unblocks any
// pending NextGroup call. It does not send UNSUBSCRIBE: the peer keeps its
// side of the subscription until the session's control stream closes.
func (t *TrackConsumer) Close() {
	t.closeOnce.Do(func() {
		if t.cancel != nil {
			t.cancel()
		}
		t.session.unsubscribe(t)
		close(t.done)
	})
}

func (t *TrackConsumer) deliver(g *GroupConsumer) {
	select {
	case t.groups <- g:
	case <-t.done:
	}
}
