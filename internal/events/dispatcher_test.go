package events

import (
	"context"
	"errors"
	"testing"
)

func TestPublishRunsAllHandlersAndJoinsErrors(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDispatcher()
	var calls int
	boom := errors.New("boom")
	d.Subscribe(EventStoreUpdated, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventStoreUpdated, func(context.Context, Event) error {
		calls++
		return nil
	})
	d.Subscribe(EventFlagsCleared, func(context.Context, Event) error {
		t.Fatalf("handler for another event type must not run")
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventStoreUpdated})
	if calls != 2 {
		t.Fatalf("expected 2 handler calls, got %d", calls)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error to contain handler failure, got %v", err)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	d := NewInMemoryDispatcher()
	var first, second int
	cancel := d.Subscribe(EventStoreUpdated, func(context.Context, Event) error {
		first++
		return nil
	})
	d.Subscribe(EventStoreUpdated, func(context.Context, Event) error {
		second++
		return nil
	})

	_ = d.Publish(context.Background(), Event{Type: EventStoreUpdated})
	cancel()
	cancel()
	_ = d.Publish(context.Background(), Event{Type: EventStoreUpdated})

	if first != 1 || second != 2 {
		t.Fatalf("unexpected deliveries first=%d second=%d", first, second)
	}
}
