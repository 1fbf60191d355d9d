// Package events provides a simple event bus for publish/subscribe
// patterns. Every mutating registry, oracle and billing operation emits an
// append-only notification through it; consumers use them for audit
// trails, never for engine correctness.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/utilibill/ports"
)

// Event is a published mutation notification.
type Event struct {
	// ID is a unique identifier for audit correlation. Empty unless the
	// bus carries an ID generator.
	ID string

	// Name is the event name, "module.action" (e.g. "registry.provider_registered").
	Name string

	// Module is the component that emitted the event.
	Module string

	// Action is the operation that triggered the event.
	Action string

	// Data carries the operation's key arguments.
	Data map[string]any
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a synchronous publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
	idgen    ports.IDGenerator
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// WithIDGenerator returns the bus stamping every published event with a
// generated identifier.
func (b *Bus) WithIDGenerator(g ports.IDGenerator) *Bus {
	b.idgen = g
	return b
}

// Subscribe registers a handler for an event name. Supports wildcard
// subscriptions: "registry.*" matches all registry events, "*" matches
// everything.
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Emit builds and publishes a module.action event.
func (b *Bus) Emit(ctx context.Context, module, action string, data map[string]any) {
	b.Publish(ctx, Event{
		Name:   module + "." + action,
		Module: module,
		Action: action,
		Data:   data,
	})
}

// Publish delivers an event to all matching handlers, synchronously and in
// registration order. Handler errors are logged, not propagated: a failed
// observer must not fail the operation that emitted the event.
func (b *Bus) Publish(ctx context.Context, event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.idgen != nil && event.ID == "" {
		event.ID = b.idgen.New()
	}

	b.logger.Debug().
		Str("event", event.Name).
		Str("module", event.Module).
		Str("action", event.Action).
		Msg("event emitted")

	var matched []Handler
	if hs, ok := b.handlers[event.Name]; ok {
		matched = append(matched, hs...)
	}
	if i := strings.IndexByte(event.Name, '.'); i > 0 {
		if hs, ok := b.handlers[event.Name[:i]+".*"]; ok {
			matched = append(matched, hs...)
		}
	}
	if hs, ok := b.handlers["*"]; ok {
		matched = append(matched, hs...)
	}

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// HasSubscribers reports whether any handler is registered for an event.
func (b *Bus) HasSubscribers(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[event]) > 0
}
