// ABOUTME: In-memory domain event bus implementing backend.EventSource.
// ABOUTME: Fans emitted events out to firehose and pattern subscribers.

package events

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/relayforge/relay/internal/backend"
)

// subscriber is one registered handler plus its pattern set. An empty
// pattern set means the firehose (every event).
type subscriber struct {
	patterns []string
	handler  backend.EventHandler
}

// Bus is an in-process event source. It is the default wiring of the binary
// and the backend stand-in for gateway tests.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber // subID -> subscriber
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]*subscriber),
		logger:      logger.With("component", "event-bus"),
	}
}

// SubscribeAll registers a handler for every event.
func (b *Bus) SubscribeAll(handler backend.EventHandler) func() {
	return b.add(nil, handler)
}

// SubscribeByPattern registers a handler for event types matching any of
// patterns. A pattern is either an exact event type or a prefix ending in
// "*" ("agent.*").
func (b *Bus) SubscribeByPattern(patterns []string, handler backend.EventHandler) func() {
	return b.add(patterns, handler)
}

func (b *Bus) add(patterns []string, handler backend.EventHandler) func() {
	subID := uuid.New().String()

	b.mu.Lock()
	b.subscribers[subID] = &subscriber{patterns: patterns, handler: handler}
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID, "patterns", patterns)

	return func() {
		b.mu.Lock()
		delete(b.subscribers, subID)
		b.mu.Unlock()
	}
}

// Emit delivers an event to every matching subscriber. Handlers run on the
// caller's goroutine in registration-independent order.
func (b *Bus) Emit(event backend.Event) {
	// Copy matching handlers under the read lock so delivery never races
	// with subscription changes.
	b.mu.RLock()
	targets := make([]backend.EventHandler, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		if sub.matches(event.Type) {
			targets = append(targets, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, handler := range targets {
		handler(event)
	}
}

func (s *subscriber) matches(eventType string) bool {
	if len(s.patterns) == 0 {
		return true
	}
	for _, pattern := range s.patterns {
		if matchPattern(pattern, eventType) {
			return true
		}
	}
	return false
}

// matchPattern supports exact matches and trailing-star prefixes.
func matchPattern(pattern, eventType string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(eventType, prefix)
	}
	return pattern == eventType
}
