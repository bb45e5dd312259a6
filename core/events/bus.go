// Package events provides a publish/subscribe bus for module lifecycle
// notifications.
package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Lifecycle event names.
const (
	ModuleLocated      = "module.located"
	ModuleMaterialized = "module.materialized"
	ModuleFailed       = "module.failed"
	ModuleDeclined     = "module.declined"
	ConfigReloaded     = "config.reloaded"
)

// Event represents a published event.
type Event struct {
	// Name is the event name (e.g., "module.materialized").
	Name string `json:"name"`

	// Module is the logical module name the event concerns.
	Module string `json:"module,omitempty"`

	// Origin is the source file, when known.
	Origin string `json:"origin,omitempty"`

	// Classes lists the record classes of a materialized module.
	Classes []string `json:"classes,omitempty"`

	// Error is the failure message for failed events.
	Error string `json:"error,omitempty"`

	At time.Time `json:"at"`
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is a publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]subscription),
		logger:   logger,
	}
}

// Subscribe registers a handler and returns a function that removes it.
// Patterns:
//   - "module.failed" - exact match
//   - "module.*" - every event in the module group
//   - "*" - all events
func (b *Bus) Subscribe(pattern string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.handlers[pattern] = append(b.handlers[pattern], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.handlers[pattern]
		for i, s := range subs {
			if s.id == id {
				b.handlers[pattern] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
		if len(b.handlers[pattern]) == 0 {
			delete(b.handlers, pattern)
		}
	}
}

// Publish delivers an event to every matching handler, exact subscribers
// first, then group and global wildcards, each in registration order.
// Handler errors are logged and do not stop delivery. Handlers run
// outside the bus lock and may subscribe or publish themselves.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.At.IsZero() {
		event.At = time.Now()
	}

	b.logger.Debug().
		Str("event", event.Name).
		Str("module", event.Module).
		Msg("event emitted")

	for _, handler := range b.match(event.Name) {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// HasSubscribers reports whether any handler would receive the event.
func (b *Bus) HasSubscribers(name string) bool {
	return len(b.match(name)) > 0
}

func (b *Bus) match(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	patterns := []string{name}
	if group, _, ok := strings.Cut(name, "."); ok {
		patterns = append(patterns, group+".*")
	}
	if name != "*" {
		patterns = append(patterns, "*")
	}

	var matched []Handler
	for _, p := range patterns {
		for _, s := range b.handlers[p] {
			matched = append(matched, s.handler)
		}
	}
	return matched
}
