// Package events provides the in-process event bus connecting the chat
// platform gateway to the automation engine.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Name identifies a platform event stream.
type Name string

const (
	MemberJoin     Name = "member_join"
	MemberLeave    Name = "member_leave"
	MessageCreate  Name = "message_create"
	ReactionAdd    Name = "reaction_add"
	ReactionRemove Name = "reaction_remove"
	VoiceJoin      Name = "voice_join"
	CommandInvoke  Name = "command_invoke"
)

// Event is one delivered platform occurrence.
type Event struct {
	ID        string
	Name      Name
	GuildID   string
	UserID    string
	ChannelID string
	Payload   any
	Timestamp time.Time
}

// Handler processes a delivered event. A handler error is logged by the bus
// and never stops delivery to other handlers.
type Handler func(ctx context.Context, event *Event) error

// Bus fans events out to subscribed handlers, sequentially per event.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[Name]map[int]Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[Name]map[int]Handler),
	}
}

// Subscribe registers a handler for the named event.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(name Name, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subs[name] == nil {
		b.subs[name] = make(map[int]Handler)
	}
	id := b.nextID
	b.nextID++
	b.subs[name][id] = handler

	log.Debug().Str("event", string(name)).Int("handler", id).Msg("Handler subscribed")

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[name], id)
	}
}

// Publish delivers the event to all handlers subscribed to its name, in
// subscription order. Handler errors are logged and delivery continues.
func (b *Bus) Publish(ctx context.Context, event *Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[event.Name]))
	ids := make([]int, 0, len(b.subs[event.Name]))
	for id := range b.subs[event.Name] {
		ids = append(ids, id)
	}
	// Map iteration order is random; dispatch in subscription order.
	sortInts(ids)
	for _, id := range ids {
		handlers = append(handlers, b.subs[event.Name][id])
	}
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("event", string(event.Name)).
				Str("event_id", event.ID).
				Msg("Event handler failed")
		}
	}
}

// SubscriberCount returns the number of handlers for an event name.
func (b *Bus) SubscriberCount(name Name) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

func sortInts(ids []int) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}
