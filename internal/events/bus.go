// Package events is the in-process pub/sub channel between the data layer
// and the presentation layer. Delivery is synchronous and follows local
// write order, not eventual network completion order.
package events

import (
	"sync"

	"github.com/tastebase/tastebase/internal/models"
)

// Type enumerates the domain events the data layer publishes.
type Type string

const (
	EntityCreated     Type = "entity_created"
	EntityUpdated     Type = "entity_updated"
	EntityDeleted     Type = "entity_deleted"
	VisibilityChanged Type = "visibility_changed"
	EntitySynced      Type = "entity_synced"
)

// Event describes one change to one entity.
type Event struct {
	Type       Type
	EntityKind models.Kind
	EntityID   string
	Visibility models.Visibility
}

// Handler receives published events. Handlers must be fast; a slow handler
// delays the publisher.
type Handler func(Event)

// Bus is a typed fan-out. The zero value is unusable; use NewBus.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for every subsequent publish.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers ev to every subscriber in subscription order.
// Fire-and-forget: there is no error path back to the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
