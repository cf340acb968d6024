package dispatch

import (
	"log/slog"
	"sync"

	"zigbee-bridge/internal/codec"
)

// Handler is a callback for envelopes.
type Handler func(codec.Envelope)

// Bus provides pub/sub for decoded envelopes, keyed by envelope type.
type Bus struct {
	mu          sync.RWMutex
	handlers    map[string]map[uint64]Handler
	allHandlers map[uint64]Handler
	nextID      uint64
	logger      *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		handlers:    make(map[string]map[uint64]Handler),
		allHandlers: make(map[uint64]Handler),
		logger:      logger.With("component", "bus"),
	}
}

// On registers a handler for one envelope type.
// Returns an unsubscribe function.
func (b *Bus) On(typ string, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	if b.handlers[typ] == nil {
		b.handlers[typ] = make(map[uint64]Handler)
	}
	b.handlers[typ][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[typ], id)
	}
}

// OnAll registers a handler that receives every envelope.
// Returns an unsubscribe function.
func (b *Bus) OnAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.allHandlers[id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.allHandlers, id)
	}
}

// Publish sends an envelope to all matching handlers.
// Handlers are called synchronously; a panicking handler is recovered.
func (b *Bus) Publish(env codec.Envelope) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers[env.Type()])+len(b.allHandlers))
	for _, h := range b.handlers[env.Type()] {
		handlers = append(handlers, h)
	}
	for _, h := range b.allHandlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("envelope handler panic", "type", env.Type(), "panic", r)
				}
			}()
			h(env)
		}()
	}
}
