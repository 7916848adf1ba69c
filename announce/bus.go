package announce

import (
	"context"
	"errors"
	"io"
	"sync"
)

// ErrConsumerTaken is returned by Bus.Consumer when a consumer has already
// been created for this bus; at most one is ever live per session.
var ErrConsumerTaken = errors.New("announce: consumer already taken")

// Entry is a single (path, active) observation: active=true signals a new
// or re-appearing broadcast, false signals withdrawal.
type Entry struct {
	Path   string
	Active bool
}

// Bus is a single-producer, single-consumer queue of Entry values.
// Consecutive duplicate observations for the same path are coalesced: if
// an unconsumed entry for a path is already queued, a new observation for
// that path overwrites it in place rather than growing the queue. This
// guarantees a terminal withdrawal is never lost, even under a slow
// consumer. The queue has no hard capacity bound: it holds at most one
// pending entry per path.
type Bus struct {
	mu            sync.Mutex
	queue         []Entry
	capacityHint  int
	closed        bool
	signal        chan struct{}
	consumerTaken bool
}

// NewBus creates a bus, recording capacityHint as its nominal queue size.
// The hint is advisory: it does not bound the queue, and same-path
// coalescing applies regardless of queue length.
func NewBus(capacityHint int) *Bus {
	if capacityHint <= 0 {
		capacityHint = 8
	}
	return &Bus{
		capacityHint: capacityHint,
		signal:       make(chan struct{}, 1),
	}
}

func (b *Bus) wake() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

// Publish records an observation. Called from the session engine's single
// writer goroutine.
func (b *Bus) Publish(e Entry) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	for i := len(b.queue) - 1; i >= 0; i-- {
		if b.queue[i].Path != e.Path {
			continue
		}
		if b.queue[i].Active == e.Active {
			b.mu.Unlock()
			return // duplicate consecutive observation, suppressed
		}
		b.queue[i] = e // collapse the pending pair into the latest state
		b.mu.Unlock()
		b.wake()
		return
	}
	b.queue = append(b.queue, e)
	b.mu.Unlock()
	b.wake()
}

// Close marks the bus closed; any blocked or future Consumer.Next call
// returns io.EOF once the queue drains.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wake()
}

// Consumer returns the bus's single consumer. A second call fails with
// ErrConsumerTaken.
func (b *Bus) Consumer() (*Consumer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.consumerTaken {
		return nil, ErrConsumerTaken
	}
	b.consumerTaken = true
	return &Consumer{bus: b}, nil
}

// Consumer is the bus's read side: a lazy, non-restartable sequence of
// Entry values.
type Consumer struct {
	bus *Bus
}

// Next blocks for the next announcement, end-of-stream (io.EOF once the
// bus is closed and drained), or ctx cancellation.
func (c *Consumer) Next(ctx context.Context) (Entry, error) {
	for {
		c.bus.mu.Lock()
		if len(c.bus.queue) > 0 {
			e := c.bus.queue[0]
			c.bus.queue = c.bus.queue[1:]
			c.bus.mu.Unlock()
			return e, nil
		}
		closed := c.bus.closed
		c.bus.mu.Unlock()

		if closed {
			return Entry{}, io.EOF
		}

		select {
		case <-c.bus.signal:
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// TryNext is the non-blocking variant of Next.
func (c *Consumer) TryNext() (Entry, bool) {
	c.bus.mu.Lock()
	defer c.bus.mu.Unlock()
	if len(c.bus.queue) == 0 {
		return Entry{}, false
	}
	e := c.bus.queue[0]
	c.bus.queue = c.bus.queue[1:]
	return e, true
}
