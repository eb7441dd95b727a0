// Package hub fans update notifications out to every open push channel.
//
// The registry is an explicit object constructed at startup and handed to
// the handlers that need it, so tests get a fresh one each time. Delivery
// is best-effort and at-most-once per currently registered channel: a
// channel that connects after a broadcast simply misses it.
package hub

import (
	"sync"
)

// Channel is one open push connection. Send must fail fast when the
// underlying sink is dead rather than block the fan-out sweep.
type Channel interface {
	ID() string
	Send(event string, data []byte) error
}

type Hub struct {
	mu       sync.RWMutex
	channels map[string]Channel
}

func New() *Hub {
	return &Hub{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel, replacing any earlier channel with the same id.
func (h *Hub) Register(ch Channel) {
	h.mu.Lock()
	h.channels[ch.ID()] = ch
	h.mu.Unlock()
}

// Unregister removes a channel. Unknown ids are ignored, so a channel
// evicted during a broadcast can still unregister itself on teardown.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	delete(h.channels, id)
	h.mu.Unlock()
}

// Len reports the number of registered channels.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.channels)
}

// Broadcast sends the named event to every registered channel. Each write
// is attempted independently; channels whose write fails are unregistered
// after the sweep completes. Broadcast never fails from the caller's
// point of view.
func (h *Hub) Broadcast(event string, data []byte) {
	h.mu.RLock()
	snapshot := make([]Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		snapshot = append(snapshot, ch)
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	var dead []string

	for _, ch := range snapshot {
		if err := ch.Send(event, data); err != nil {
			dead = append(dead, ch.ID())
		}
	}

	for _, id := range dead {
		h.Unregister(id)
	}
}
