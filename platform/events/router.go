package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoRoute is returned when no handler is registered for an event.
var ErrNoRoute = errors.New("no handler registered")

// Router maps (topic, event type) pairs to handlers.
type Router struct {
	mu     sync.RWMutex
	routes map[string]map[string]Handler
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{routes: make(map[string]map[string]Handler)}
}

// Handle registers h for eventType delivered on topic. Registering the same
// pair twice replaces the earlier handler.
func (r *Router) Handle(topic, eventType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byType, ok := r.routes[topic]
	if !ok {
		byType = make(map[string]Handler)
		r.routes[topic] = byType
	}
	byType[eventType] = h
}

// Topics returns the subscribed topics in sorted order.
func (r *Router) Topics() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// Dispatch invokes the handler registered for env on topic.
func (r *Router) Dispatch(ctx context.Context, topic string, env Envelope) error {
	r.mu.RLock()
	h, ok := r.routes[topic][env.Type]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w for %s/%s", ErrNoRoute, topic, env.Type)
	}
	return h.Handle(ctx, env)
}
