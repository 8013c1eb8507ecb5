// Package sse fans now-playing payloads out to long-lived subscribers.
package sse

import (
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// Control messages, delivered on the same channel as snapshots.
var (
	connectedEvent = []byte(`{"type":"heartbeat","message":"Connected"}`)
	shutdownEvent  = []byte(`{"message":"Server connection lost..."}`)
)

// subscriberBuffer is the per-subscriber queue depth. A subscriber that
// falls this far behind is dropped rather than allowed to stall publishes.
const subscriberBuffer = 16

// Subscription is one live subscriber connection.
type Subscription struct {
	id uuid.UUID
	ch chan []byte
}

// Events returns the channel payloads are delivered on. The channel is
// closed when the subscription ends.
func (s *Subscription) Events() <-chan []byte {
	return s.ch
}

// Hub owns the set of live subscriptions and the most recent payload.
type Hub struct {
	logger *log.Logger

	mu     sync.Mutex
	subs   map[uuid.UUID]*Subscription
	last   []byte
	closed bool
}

// NewHub creates an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[uuid.UUID]*Subscription),
	}
}

// Subscribe registers a new subscriber. The connected acknowledgement is
// delivered immediately, followed by the most recent payload if one exists,
// so new subscribers never wait for the next poll cycle.
func (h *Hub) Subscribe() *Subscription {
	sub := &Subscription{
		id: uuid.New(),
		ch: make(chan []byte, subscriberBuffer),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(sub.ch)
		return sub
	}

	sub.ch <- connectedEvent
	if h.last != nil {
		sub.ch <- h.last
	}
	h.subs[sub.id] = sub
	h.logger.Debug("subscriber joined", "id", sub.id, "total", len(h.subs))
	return sub
}

// Unsubscribe removes a subscription and closes its channel. Idempotent.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// remove must be called with h.mu held.
func (h *Hub) remove(sub *Subscription) {
	if _, ok := h.subs[sub.id]; !ok {
		return
	}
	delete(h.subs, sub.id)
	close(sub.ch)
	h.logger.Debug("subscriber left", "id", sub.id, "total", len(h.subs))
}

// Publish caches the payload and delivers it to every subscriber,
// best-effort. A subscriber whose buffer is full is dropped; the rest are
// unaffected.
func (h *Hub) Publish(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.last = payload

	for _, sub := range h.subs {
		select {
		case sub.ch <- payload:
		default:
			h.logger.Warn("dropping slow subscriber", "id", sub.id)
			h.remove(sub)
		}
	}
}

// Last returns the most recent published payload, or nil.
func (h *Hub) Last() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Shutdown flushes a final message to every subscriber and closes all
// subscriptions. Further Subscribe and Publish calls are no-ops.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for _, sub := range h.subs {
		select {
		case sub.ch <- shutdownEvent:
		default:
		}
		close(sub.ch)
	}
	h.subs = make(map[uuid.UUID]*Subscription)
	h.logger.Info("broadcast hub shut down")
}
