package session

import (
	"io"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/moqclient/wire"
)

// sendSink is the minimal surface GroupProducer needs from an outgoing
// stream; quic.SendStream satisfies it, and tests can supply an in-memory
// double without implementing quic.SendStream's full method set.
type sendSink interface {
	io.Writer
	Close() error
	CancelWrite(quic.StreamErrorCode)
}

// recvSource is the minimal surface GroupConsumer needs from an incoming
// stream; quic.ReceiveStream satisfies it.
type recvSource interface {
	io.Reader
	CancelRead(quic.StreamErrorCode)
}

// GroupProducer writes frames to a single group stream. Creating a new
// group on the owning TrackProducer implicitly finishes this one.
type GroupProducer struct {
	mu       sync.Mutex
	stream   sendSink
	seq      uint64
	finished bool
}

// Sequence returns the group's sequence number.
func (g *GroupProducer) Sequence() uint64 {
	return g.seq
}

// WriteFrame appends one frame to the group. It fails once the group has
// been finished or aborted.
func (g *GroupProducer) WriteFrame(payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished {
		return wire.ErrGroupFinished
	}
	return wire.WriteFrame(g.stream, payload)
}

// Finish gracefully half-closes the group stream, signaling end-of-group
// to the consumer. Idempotent.
func (g *GroupProducer) Finish() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished {
		return nil
	}
	g.finished = true
	return g.stream.Close()
}

// Abort resets the group stream, signaling an aborted group to the
// consumer. Idempotent; a prior Finish wins.
func (g *GroupProducer) Abort(code quic.StreamErrorCode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.finished {
		return
	}
	g.finished = true
	g.stream.CancelWrite(code)
}

// GroupConsumer reads frames from a single group stream in order.
type GroupConsumer struct {
	stream recvSource
	seq    uint64

	mu    sync.Mutex
	ended bool
	err   error
}

// Sequence returns the group's sequence number.
func (g *GroupConsumer) Sequence() uint64 {
	return g.seq
}

// ReadFrame returns the next frame in the group, io.EOF once the group has
// ended gracefully, or an error wrapping wire.ErrGroupAborted if the group
// was reset or truncated.
func (g *GroupConsumer) ReadFrame() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ended {
		return nil, g.err
	}
	payload, err := wire.ReadFrame(g.stream)
	if err != nil {
		g.ended = true
		g.err = err
		return nil, err
	}
	return payload, nil
}

// nopSink discards writes; used for a track's groups while it has no
// subscriber, so producers never block on demand that doesn't exist yet.
type nopSink struct{}

func (nopSink) Write(p []byte) (int, error)   { return len(p), nil }
func (nopSink) Close() error                  { return nil }
func (nopSink) CancelWrite(quic.StreamErrorCode) {}
