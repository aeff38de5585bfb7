package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/star/skywatch/internal/event"
	"github.com/star/skywatch/internal/metrics"
)

// Hub broadcasts events to subscribers over buffered channels. A subscriber
// whose buffer is full misses the event; the hub never waits.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *slog.Logger
}

// Subscription is one consumer of a Hub.
type Subscription struct {
	C    <-chan event.Event
	c    chan event.Event
	name string
	hub  *Hub
	once sync.Once
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With("component", "hub"),
	}
}

// Subscribe registers a new subscriber. name labels drop metrics.
func (h *Hub) Subscribe(name string) *Subscription {
	c := make(chan event.Event, h.buffer)
	s := &Subscription{C: c, c: c, name: name, hub: h}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.c)
		s.hub.mu.Unlock()
	})
}

// Notify offers e to every subscriber without blocking.
func (h *Hub) Notify(_ context.Context, e event.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.c <- e:
		default:
			metrics.IncNotifyDropped(s.name)
			h.logger.Debug("subscriber buffer full, event dropped", "subscriber", s.name, "event", e.Key())
		}
	}
}

// Len is the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
