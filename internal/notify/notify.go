// Package notify delivers mutation events to interested parties.  Stores
// and services only emit a model.MutationEvent after commit; who receives
// it, and over which transport, is decided here.  Delivery is best effort:
// a failed notification is logged and never fails the mutation that
// produced it.
package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/iliyamo/booking-record-engine/internal/model"
)

// Notifier receives one event per committed mutation.
type Notifier interface {
	Notify(ctx context.Context, ev model.MutationEvent)
}

// Nop discards events.
type Nop struct{}

func (Nop) Notify(context.Context, model.MutationEvent) {}

// Multi fans an event out to every member in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev model.MutationEvent) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// Hub is the in-process subscriber registry.  Each subscriber gets its own
// buffered channel; a subscriber that falls behind loses events rather
// than blocking writers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan model.MutationEvent
	next    uint64
	buffer  int
	closed  bool
	dropped atomic.Uint64
	log     *zap.Logger
}

// NewHub returns an empty hub.  buffer <= 0 uses DefaultBuffer.
func NewHub(buffer int, log *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: map[uint64]chan model.MutationEvent{}, buffer: buffer, log: log}
}

// Subscribe registers a new subscriber.  The returned cancel func removes
// it and closes the channel; it is safe to call more than once.
// After Close the channel is returned already closed.
func (h *Hub) Subscribe() (<-chan model.MutationEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch := make(chan model.MutationEvent, h.buffer)
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(ch)
			}
		})
	}
}

// Close ends every subscription so long-lived readers return during
// shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}

// Notify delivers ev to every subscriber without blocking.
func (h *Hub) Notify(_ context.Context, ev model.MutationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
			h.log.Warn("subscriber too slow, event dropped",
				zap.Uint64("subscriber", id),
				zap.Uint64("booking_id", ev.BookingID),
				zap.String("action", ev.Action))
		}
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }
