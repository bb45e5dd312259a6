package events

import (
	"context"
	"sync"
)

// History keeps the most recent events delivered to it.
type History struct {
	mu     sync.Mutex
	events []Event
	next   int
	full   bool
}

// NewHistory creates a history holding up to size events.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{events: make([]Event, size)}
}

// Attach subscribes the history to every event on bus.
func (h *History) Attach(bus *Bus) (detach func()) {
	return bus.Subscribe("*", h.Handle)
}

// Handle records an event. It satisfies Handler.
func (h *History) Handle(_ context.Context, e Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events[h.next] = e
	h.next = (h.next + 1) % len(h.events)
	if h.next == 0 {
		h.full = true
	}
	return nil
}

// Recent returns the recorded events, oldest first.
func (h *History) Recent() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		return append([]Event(nil), h.events[:h.next]...)
	}
	out := make([]Event, 0, len(h.events))
	out = append(out, h.events[h.next:]...)
	out = append(out, h.events[:h.next]...)
	return out
}
