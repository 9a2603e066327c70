package progress

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHubPublishAndFetch(t *testing.T) {
	hub := NewHub(10)
	ctx := context.Background()
	for _, kind := range []Kind{StepStart, Log, StepComplete} {
		if err := hub.Emit(ctx, kind, map[string]any{"step": "segment"}); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}

	events, next, err := hub.Fetch(ctx, 1, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if next != 3 || len(events) != 2 {
		t.Fatalf("unexpected fetch result next=%d events=%+v", next, events)
	}
	if events[0].Event != Log || events[1].Event != StepComplete {
		t.Fatalf("events out of order: %+v", events)
	}
}

func TestHubDropsOldestWhenFull(t *testing.T) {
	hub := NewHub(2)
	for range 3 {
		_ = hub.Emit(context.Background(), Log, nil)
	}
	events, next := hub.Tail(0)
	if next != 3 || len(events) != 2 || events[0].Sequence != 2 {
		t.Fatalf("unexpected tail next=%d events=%+v", next, events)
	}
}

func TestHubWaitWakesOnPublish(t *testing.T) {
	hub := NewHub(10)
	done := make(chan []Event, 1)
	go func() {
		events, _, _ := hub.Fetch(context.Background(), 0, 0, true)
		done <- events
	}()

	time.Sleep(10 * time.Millisecond)
	_ = hub.Emit(context.Background(), StepStart, nil)

	select {
	case events := <-done:
		if len(events) != 1 || events[0].Event != StepStart {
			t.Fatalf("unexpected events %+v", events)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not wake")
	}
}

func TestHubWaitHonoursContext(t *testing.T) {
	hub := NewHub(10)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := hub.Fetch(ctx, 0, 0, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestTerminalEventClosesHub(t *testing.T) {
	hub := NewHub(10)
	ctx := context.Background()
	_ = hub.Emit(ctx, Complete, map[string]any{"success": true})
	if !hub.Closed() {
		t.Fatal("expected hub closed after terminal event")
	}
	if err := hub.Emit(ctx, Log, nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	events, _, err := hub.Fetch(ctx, 1, 0, true)
	if err != nil || len(events) != 0 {
		t.Fatalf("closed hub must not block: events=%v err=%v", events, err)
	}
}

func TestHubFetchLimitAdvancesCursorByReturnedEvents(t *testing.T) {
	hub := NewHub(8)
	for range 3 {
		if _, err := hub.Publish(Event{Event: Log}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	events, next, err := hub.Fetch(context.Background(), 0, 1, false)
	if err != nil || len(events) != 1 || next != 1 {
		t.Fatalf("fetch limit 1: events=%d next=%d err=%v", len(events), next, err)
	}
	events, next, _ = hub.Fetch(context.Background(), next, 5, false)
	if len(events) != 2 || next != 3 {
		t.Fatalf("fetch rest: events=%d next=%d", len(events), next)
	}
}
