package events

import (
	"context"
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := bus.Subscribe(ctx)
	b := bus.Subscribe(ctx)

	bus.Publish(Event{Kind: KindAuthzDenied, IdentityID: "id-1"})

	for name, ch := range map[string]<-chan Event{"a": a, "b": b} {
		select {
		case evt := <-ch:
			if evt.Kind != KindAuthzDenied || evt.IdentityID != "id-1" {
				t.Fatalf("subscriber %s got %+v", name, evt)
			}
			if evt.Timestamp.IsZero() {
				t.Fatalf("subscriber %s: timestamp not set", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s never received the event", name)
		}
	}
}

func TestSubscribeClosesOnContextEnd(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch := bus.Subscribe(ctx)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected closed channel, got event")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}

	// Publishing after unsubscribe must not panic or block.
	bus.Publish(Event{Kind: KindRateLimited})
}

func TestPublishDropsWhenSubscriberSlow(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := bus.Subscribe(ctx)
	// Fill the buffer and keep going; Publish must never block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Kind: KindAuthFailed})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	// Drain what was buffered.
	for i := 0; i < 16; i++ {
		<-ch
	}
}
