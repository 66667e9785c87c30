package connection

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/mcdev12/cardduel/go/internal/realtime/events"
	"github.com/rs/zerolog/log"
)

// Handler receives the raw payload of an event
type Handler func(data json.RawMessage)

// Subscription is the handle returned by On. It knows how to remove itself.
type Subscription struct {
	ID    string
	Event events.EventType

	handler  Handler
	registry *Registry
}

// Unsubscribe removes the handler. Calling it more than once is a no-op.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.registry == nil {
		return
	}
	s.registry.Off(s)
}

// Registry is an ordered event -> handlers table. Handlers for one event run
// in registration order.
type Registry struct {
	mu       sync.RWMutex
	handlers map[events.EventType][]*Subscription
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[events.EventType][]*Subscription),
	}
}

// On registers handler for event
func (r *Registry) On(event events.EventType, handler Handler) *Subscription {
	sub := &Subscription{
		ID:       uuid.New().String(),
		Event:    event,
		handler:  handler,
		registry: r,
	}

	r.mu.Lock()
	r.handlers[event] = append(r.handlers[event], sub)
	r.mu.Unlock()

	return sub
}

// Off removes a subscription
func (r *Registry) Off(sub *Subscription) {
	if sub == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[sub.Event]
	for i, s := range subs {
		if s == sub {
			// copy so that in-flight Dispatch snapshots are not disturbed
			next := make([]*Subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			if len(next) == 0 {
				delete(r.handlers, sub.Event)
			} else {
				r.handlers[sub.Event] = next
			}
			return
		}
	}
}

// Dispatch invokes every handler registered for event and returns how many ran
func (r *Registry) Dispatch(event events.EventType, data json.RawMessage) int {
	r.mu.RLock()
	subs := r.handlers[event]
	r.mu.RUnlock()

	for _, sub := range subs {
		r.invoke(sub, data)
	}
	return len(subs)
}

func (r *Registry) invoke(sub *Subscription, data json.RawMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("event", string(sub.Event)).
				Str("subscription_id", sub.ID).
				Msg("event handler panicked")
		}
	}()
	sub.handler(data)
}

// Count returns the number of handlers registered for event
func (r *Registry) Count(event events.EventType) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[event])
}

// Len returns the total number of registered handlers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, subs := range r.handlers {
		total += len(subs)
	}
	return total
}

// Clear removes every registered handler
func (r *Registry) Clear() {
	r.mu.Lock()
	r.handlers = make(map[events.EventType][]*Subscription)
	r.mu.Unlock()
}
