// Package notify fans notifications out to the live connections of their owner.
package notify

import (
	"sync"

	"webpub/internal/models"
)

// Hub delivers to subscribers without blocking publishers: a subscriber whose
// buffer is full misses the notification and picks it up on its next list call.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*subscription]struct{}
	buffer int
}

type subscription struct {
	ch   chan models.Notification
	once sync.Once
}

func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}

	return &Hub{
		subs:   make(map[string]map[*subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a live receiver for owner. cancel must be called when the
// receiver goes away; it closes the channel.
func (h *Hub) Subscribe(owner string) (<-chan models.Notification, func()) {
	sub := &subscription{ch: make(chan models.Notification, h.buffer)}

	h.mu.Lock()
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[*subscription]struct{})
	}
	h.subs[owner][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs[owner], sub)
		if len(h.subs[owner]) == 0 {
			delete(h.subs, owner)
		}
		h.mu.Unlock()

		sub.once.Do(func() { close(sub.ch) })
	}

	return sub.ch, cancel
}

// Publish returns how many receivers accepted n.
func (h *Hub) Publish(n models.Notification) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[n.OwnerID] {
		select {
		case sub.ch <- n:
			delivered++
		default:
		}
	}

	return delivered
}

func (h *Hub) Subscribers(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subs[owner])
}
