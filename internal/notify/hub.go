package notify

import (
	"context"
	"sync"
)

// Hub routes events to in-process subscribers keyed by owner id. A
// subscriber whose buffer is full is dropped rather than blocking workers.
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

// Subscription receives the events of one owner.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	hub     *Hub
	ownerID string
	closed  bool
}

// NewHub returns a hub with per-subscriber buffers of size buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 32
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscribe registers a new subscriber for ownerID.
func (h *Hub) Subscribe(ownerID string) *Subscription {
	ch := make(chan Event, h.buffer)
	s := &Subscription{C: ch, ch: ch, hub: h, ownerID: ownerID}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[ownerID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[ownerID] = set
	}
	set[s] = struct{}{}
	return s
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

// Publish delivers e to every subscriber of e.OwnerID. Sends happen under the
// hub lock so each subscriber observes events in publish order.
func (h *Hub) Publish(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs[e.OwnerID] {
		select {
		case s.ch <- e:
		default:
			h.removeLocked(s)
		}
	}
	return nil
}

// Subscribers reports the number of live subscribers for ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}

func (h *Hub) removeLocked(s *Subscription) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	set := h.subs[s.ownerID]
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.ownerID)
	}
}

var _ Publisher = (*Hub)(nil)
