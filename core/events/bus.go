package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"harvestmart/core/types"
)

// Envelope wraps a domain event with delivery bookkeeping. The ID is unique
// per publication so downstream consumers (the notification service,
// indexers) can deduplicate redeliveries.
type Envelope struct {
	ID        string
	EmittedAt time.Time
	Type      string
	Event     *types.Event
}

// Bus is an in-process fan-out emitter. Delivery to subscribers is
// non-blocking: a subscriber that falls behind loses events rather than
// stalling the engine that emitted them. Consumers needing stronger
// guarantees should drain promptly or persist from a dedicated goroutine.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Envelope
	nextSub int
	nowFn   func() time.Time
}

// NewBus returns an empty bus with no subscribers.
func NewBus() *Bus {
	return &Bus{
		subs:  make(map[int]chan Envelope),
		nowFn: time.Now,
	}
}

// SetNowFunc overrides the timestamp source. Intended for tests.
func (b *Bus) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	b.mu.Lock()
	b.nowFn = now
	b.mu.Unlock()
}

// Subscribe registers a new consumer with the given channel buffer and
// returns the receive channel plus a cancel function. Cancelling closes the
// channel after removing the subscription.
func (b *Bus) Subscribe(buffer int) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Envelope, buffer)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Emit implements the Emitter interface. Nil events and events without a
// type are dropped.
func (b *Bus) Emit(evt Event) {
	if b == nil || evt == nil {
		return
	}
	envelope := Envelope{
		ID:   uuid.NewString(),
		Type: evt.EventType(),
	}
	if envelope.Type == "" {
		return
	}
	if payload, ok := evt.(PayloadEvent); ok {
		envelope.Event = payload.Event()
	}

	b.mu.RLock()
	envelope.EmittedAt = b.nowFn()
	for _, ch := range b.subs {
		select {
		case ch <- envelope:
		default:
			// Subscriber buffer full; drop rather than block the engine.
		}
	}
	b.mu.RUnlock()
}
