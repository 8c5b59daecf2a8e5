package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Hub fans events out to in-process subscribers such as dashboard streams.
// Slow subscribers lose events instead of stalling publishers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
	now     func() time.Time
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[uint64]chan Event), buffer: buffer, now: time.Now}
}

// Subscription receives events until closed.
type Subscription struct {
	C <-chan Event

	id   uint64
	hub  *Hub
	once sync.Once
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	h.mu.Unlock()

	return &Subscription{C: ch, id: id, hub: h}
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		ch, ok := s.hub.subs[s.id]
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
		if ok {
			close(ch)
		}
	})
}

// Publish delivers the event to every subscriber with free buffer space.
func (h *Hub) Publish(event string, payload any) {
	ev := Event{Name: event, Payload: payload, OccurredAt: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
