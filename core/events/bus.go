// Package events provides an in-process publish/subscribe bus. Topics are
// slash separated, e.g. "smartyellow/services/reload".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/smartyellow/services/ports"
)

// Event represents a published event.
type Event struct {
	// Topic is the event topic.
	Topic string `json:"topic"`

	// Source names the plugin or process that published the event.
	Source string `json:"source,omitempty"`

	// Data contains the event payload.
	Data map[string]any `json:"data,omitempty"`
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a topic pattern:
//   - "smartyellow/services/reload" - exact match
//   - "smartyellow/services/*" - every topic below the prefix
//   - "*" - all topics
func (b *Bus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

// Publish calls every matching handler synchronously, exact subscribers
// first, then prefix subscribers from the most specific prefix, then global
// ones. Handler errors are logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.match(event.Topic)

	b.logger.Debug().
		Str("topic", event.Topic).
		Str("source", event.Source).
		Int("handlers", len(matched)).
		Msg("event published")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("topic", event.Topic).
				Msg("event handler error")
		}
	}
}

// PublishAsync publishes on a new goroutine.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	go b.Publish(context.WithoutCancel(ctx), event)
}

// HasSubscribers checks if any handler matches the topic.
func (b *Bus) HasSubscribers(topic string) bool {
	return len(b.match(topic)) > 0
}

func (b *Bus) match(topic string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	matched = append(matched, b.handlers[topic]...)
	for _, prefix := range prefixes(topic) {
		matched = append(matched, b.handlers[prefix+"/*"]...)
	}
	matched = append(matched, b.handlers["*"]...)
	return matched
}

// prefixes returns the parent topics of topic, longest first.
func prefixes(topic string) []string {
	var out []string
	for i := strings.LastIndex(topic, "/"); i > 0; i = strings.LastIndex(topic[:i], "/") {
		out = append(out, topic[:i])
	}
	return out
}

// Forward returns a handler relaying events to another process through pub
// as JSON.
func Forward(pub ports.Publisher) Handler {
	return func(ctx context.Context, event Event) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
		if err := pub.Publish(ctx, event.Topic, payload); err != nil {
			return fmt.Errorf("forward %s: %w", event.Topic, err)
		}
		return nil
	}
}
