package announce

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestBusDeliversInOrder(t *testing.T) {
	t.Parallel()
	b := NewBus(4)
	b.Publish(Entry{Path: "a", Active: true})
	b.Publish(Entry{Path: "b", Active: true})

	c, err := b.Consumer()
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	e1, err := c.Next(ctx)
	if err != nil || e1 != (Entry{Path: "a", Active: true}) {
		t.Fatalf("e1 = %+v, err = %v", e1, err)
	}
	e2, err := c.Next(ctx)
	if err != nil || e2 != (Entry{Path: "b", Active: true}) {
		t.Fatalf("e2 = %+v, err = %v", e2, err)
	}
}

func TestBusSuppressesConsecutiveDuplicates(t *testing.T) {
	t.Parallel()
	b := NewBus(4)
	b.Publish(Entry{Path: "a", Active: true})
	b.Publish(Entry{Path: "a", Active: true}) // duplicate, suppressed

	c, _ := b.Consumer()
	ctx := context.Background()
	e, err := c.Next(ctx)
	if err != nil || e.Active != true {
		t.Fatalf("e = %+v, err = %v", e, err)
	}
	if _, ok := c.TryNext(); ok {
		t.Fatal("expected no further entries")
	}
}

func TestBusCoalescesPendingPair(t *testing.T) {
	t.Parallel()
	b := NewBus(4)
	b.Publish(Entry{Path: "a", Active: true})
	// Consumer hasn't drained yet; withdrawal-then-reactivation collapses
	// into the single latest observation.
	b.Publish(Entry{Path: "a", Active: false})
	b.Publish(Entry{Path: "a", Active: true})

	c, _ := b.Consumer()
	e, ok := c.TryNext()
	if !ok {
		t.Fatal("expected one coalesced entry")
	}
	if e.Active != true {
		t.Fatalf("coalesced entry = %+v, want Active=true", e)
	}
	if _, ok := c.TryNext(); ok {
		t.Fatal("expected queue drained after coalescing")
	}
}

func TestBusNeverDropsTerminalWithdrawal(t *testing.T) {
	t.Parallel()
	b := NewBus(1)
	b.Publish(Entry{Path: "a", Active: true})
	b.Publish(Entry{Path: "a", Active: false})

	c, _ := b.Consumer()
	e, ok := c.TryNext()
	if !ok || e.Active {
		t.Fatalf("expected terminal withdrawal observation, got %+v ok=%v", e, ok)
	}
}

func TestBusAlternation(t *testing.T) {
	t.Parallel()
	b := NewBus(4)
	c, _ := b.Consumer()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		b.Publish(Entry{Path: "b", Active: true})
	}()
	e1, err := c.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		b.Publish(Entry{Path: "b", Active: false})
	}()
	e2, err := c.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}

	go func() {
		b.Publish(Entry{Path: "b", Active: true})
	}()
	e3, err := c.Next(ctx)
	if err != nil {
		t.Fatal(err)
	}

	got := []bool{e1.Active, e2.Active, e3.Active}
	want := []bool{true, false, true}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("alternation = %v, want %v", got, want)
		}
	}
}

func TestBusSecondConsumerFails(t *testing.T) {
	t.Parallel()
	b := NewBus(4)
	if _, err := b.Consumer(); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Consumer(); err != ErrConsumerTaken {
		t.Fatalf("err = %v, want ErrConsumerTaken", err)
	}
}

func TestBusCloseYieldsEOFAfterDrain(t *testing.T) {
	t.Parallel()
	b := NewBus(4)
	b.Publish(Entry{Path: "a", Active: true})
	b.Close()

	c, _ := b.Consumer()
	ctx := context.Background()
	if _, err := c.Next(ctx); err != nil {
		t.Fatalf("expected queued entry before EOF, got %v", err)
	}
	if _, err := c.Next(ctx); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF", err)
	}
}

func TestBusNextRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	b := NewBus(4)
	c, _ := b.Consumer()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Next(ctx); err == nil {
		t.Fatal("expected context cancellation error")
	}
}
