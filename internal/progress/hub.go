// Package progress carries stage-transition notifications to observers of
// event-driven runs. Delivery is best effort: a failed Emit is logged by the
// caller and never retried, and it never affects pipeline control flow.
package progress

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Kind names a progress event.
type Kind string

const (
	StepStart    Kind = "step_start"
	StepComplete Kind = "step_complete"
	StepError    Kind = "step_error"
	Log          Kind = "log"
	Complete     Kind = "complete"
	Error        Kind = "error"
)

// Terminal reports whether the kind ends a run's event stream.
func (k Kind) Terminal() bool {
	return k == Complete || k == Error
}

// Event is one progress notification.
type Event struct {
	Sequence  uint64         `json:"seq"`
	Timestamp time.Time      `json:"ts"`
	Event     Kind           `json:"event"`
	Data      map[string]any `json:"data,omitempty"`
}

// Emitter delivers events to an observer.
type Emitter interface {
	Emit(ctx context.Context, kind Kind, data map[string]any) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, kind Kind, data map[string]any) error

func (f EmitterFunc) Emit(ctx context.Context, kind Kind, data map[string]any) error {
	return f(ctx, kind, data)
}

// Nop discards every event.
var Nop Emitter = EmitterFunc(func(context.Context, Kind, map[string]any) error { return nil })

// ErrClosed is returned when emitting into a closed hub.
var ErrClosed = errors.New("progress hub closed")

// Hub stores recent events and wakes waiters when new events arrive.
type Hub struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	buffer   []Event
	nextSeq  uint64
	closed   bool
}

// NewHub constructs a bounded in-memory event buffer.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 512
	}
	h := &Hub{capacity: capacity}
	h.cond = sync.NewCond(&h.mu)
	return h
}

// Emit publishes an event. A terminal event closes the hub.
func (h *Hub) Emit(_ context.Context, kind Kind, data map[string]any) error {
	if h == nil {
		return nil
	}
	_, err := h.Publish(Event{Event: kind, Data: data})
	return err
}

// Publish appends an event and returns its sequence number.
func (h *Hub) Publish(evt Event) (uint64, error) {
	if h == nil {
		return 0, nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}
	h.nextSeq++
	evt.Sequence = h.nextSeq
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if len(h.buffer) == h.capacity {
		copy(h.buffer, h.buffer[1:])
		h.buffer = h.buffer[:h.capacity-1]
	}
	h.buffer = append(h.buffer, evt)
	if evt.Event.Terminal() {
		h.closed = true
	}
	h.cond.Broadcast()
	return evt.Sequence, nil
}

// Close stops accepting events and releases waiters.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.mu.Lock()
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
}

// Closed reports whether the stream has ended.
func (h *Hub) Closed() bool {
	if h == nil {
		return true
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Fetch returns events with sequence greater than since. When wait is true,
// Fetch blocks until at least one event is available, the hub closes, or the
// context ends.
func (h *Hub) Fetch(ctx context.Context, since uint64, limit int, wait bool) ([]Event, uint64, error) {
	if h == nil {
		return nil, since, nil
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}

	cancelWait := make(chan struct{})
	if wait && ctx != nil && ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				h.mu.Lock()
				h.cond.Broadcast()
				h.mu.Unlock()
			case <-cancelWait:
			}
		}()
	}
	defer close(cancelWait)

	h.mu.Lock()
	defer h.mu.Unlock()

	for {
		events, next := h.snapshotLocked(since, limit)
		if len(events) > 0 || !wait || h.closed {
			return events, next, nil
		}
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
		h.cond.Wait()
		if err := contextError(ctx); err != nil {
			return nil, next, err
		}
	}
}

// Tail returns the most recent limit events without blocking.
func (h *Hub) Tail(limit int) ([]Event, uint64) {
	if h == nil {
		return nil, 0
	}
	if limit <= 0 || limit > h.capacity {
		limit = h.capacity
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	start := max(len(h.buffer)-limit, 0)
	out := make([]Event, len(h.buffer)-start)
	copy(out, h.buffer[start:])
	return out, h.nextSeq
}

func (h *Hub) snapshotLocked(since uint64, limit int) ([]Event, uint64) {
	startIdx := -1
	for i, evt := range h.buffer {
		if evt.Sequence > since {
			startIdx = i
			break
		}
	}
	if startIdx < 0 {
		return nil, h.nextSeq
	}
	end := min(startIdx+limit, len(h.buffer))
	out := make([]Event, end-startIdx)
	copy(out, h.buffer[startIdx:end])
	return out, out[len(out)-1].Sequence
}

func contextError(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
