package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pocketrb/core/pkg/models"
)

func TestPublishConsumeInboundFIFO(t *testing.T) {
	b := New(nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		m := models.InboundMessage{Channel: "cli", ChatID: "c1", Content: string(rune('a' + i))}
		if err := b.PublishInbound(ctx, m); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for i := 0; i < 3; i++ {
		m, ok, err := b.ConsumeInbound(ctx)
		if err != nil || !ok {
			t.Fatalf("consume: ok=%v err=%v", ok, err)
		}
		want := string(rune('a' + i))
		if m.Content != want {
			t.Fatalf("out of order: got %q want %q", m.Content, want)
		}
	}
}

func TestSubscribeDoesNotDrainQueue(t *testing.T) {
	b := New(nil)
	ctx := context.Background()

	var seen int
	var mu sync.Mutex
	if err := b.Subscribe(StreamInbound, func(event any) {
		mu.Lock()
		seen++
		mu.Unlock()
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	m := models.InboundMessage{Channel: "cli", ChatID: "c1", Content: "hi"}
	if err := b.PublishInbound(ctx, m); err != nil {
		t.Fatalf("publish: %v", err)
	}

	mu.Lock()
	if seen != 1 {
		t.Fatalf("expected subscriber invoked once, got %d", seen)
	}
	mu.Unlock()

	_, ok, err := b.ConsumeInbound(ctx)
	if err != nil || !ok {
		t.Fatalf("consumer should still see the message: ok=%v err=%v", ok, err)
	}
}

func TestSubscriberPanicIsolated(t *testing.T) {
	b := New(nil)
	ctx := context.Background()

	var secondCalled bool
	b.Subscribe(StreamInbound, func(event any) { panic("boom") })
	b.Subscribe(StreamInbound, func(event any) { secondCalled = true })

	if err := b.PublishInbound(ctx, models.InboundMessage{Channel: "cli", ChatID: "c1"}); err != nil {
		t.Fatalf("publish should not observe subscriber panic: %v", err)
	}
	if !secondCalled {
		t.Fatalf("second subscriber should still run after the first panics")
	}
}

func TestPublishBlocksWhenFull(t *testing.T) {
	b := NewWithCapacity(nil, 1)
	ctx := context.Background()

	if err := b.PublishInbound(ctx, models.InboundMessage{ChatID: "c1"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- b.PublishInbound(ctx, models.InboundMessage{ChatID: "c2"})
	}()

	select {
	case <-done:
		t.Fatalf("second publish should block while queue is full")
	case <-time.After(50 * time.Millisecond):
	}

	if _, _, err := b.ConsumeInbound(ctx); err != nil {
		t.Fatalf("consume: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unblocked publish failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("publish did not unblock after drain")
	}
}

func TestShutdownSignalsConsumers(t *testing.T) {
	b := New(nil)
	ctx := context.Background()

	done := make(chan bool, 1)
	go func() {
		_, ok, err := b.ConsumeInbound(ctx)
		if err != nil {
			t.Errorf("shutdown should not surface as an error: %v", err)
		}
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	b.Shutdown()

	select {
	case ok := <-done:
		if ok {
			t.Fatalf("expected ok=false on shutdown")
		}
	case <-time.After(time.Second):
		t.Fatalf("consumer never unblocked on shutdown")
	}
}

func TestStateChangeRequiresDistinctStates(t *testing.T) {
	b := New(nil)
	ctx := context.Background()

	err := b.PublishStateChange(ctx, models.StateChangeEvent{SessionKey: "cli:c1", From: models.StateIdle, To: models.StateIdle})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatsMonotonicUntilClear(t *testing.T) {
	b := New(nil)
	ctx := context.Background()

	b.PublishInbound(ctx, models.InboundMessage{ChatID: "c1"})
	b.ConsumeInbound(ctx)

	stats := b.Stats()[StreamInbound]
	if stats.Published != 1 || stats.Consumed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	b.Clear()
	stats = b.Stats()[StreamInbound]
	if stats.Published != 0 || stats.Consumed != 0 {
		t.Fatalf("expected counters reset after Clear, got %+v", stats)
	}
}
