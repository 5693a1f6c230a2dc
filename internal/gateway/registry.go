// ABOUTME: Authoritative registries for live connections and subscriptions.
// ABOUTME: Both share one lock so client removal cascades atomically.

package gateway

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/relayforge/relay/internal/protocol"
)

// Registry errors
var (
	ErrClientExists         = errors.New("client already registered")
	ErrClientNotFound       = errors.New("client not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// Subscription is one standing interest registration. ClientID always
// resolves to a live client in the connection registry; the registries
// maintain that invariant under their shared lock.
type Subscription struct {
	ID       string
	Type     protocol.SubscriptionType
	Filter   map[string]any
	ClientID string
}

// ConnectionRegistry owns the id -> Client map. All mutations take the
// shared registry lock so they are mutually exclusive with subscription
// mutations system-wide.
type ConnectionRegistry struct {
	mu      *sync.RWMutex
	clients map[string]*Client
	subs    *SubscriptionRegistry
	metrics *Metrics
	logger  *slog.Logger
}

// SubscriptionRegistry owns the id -> Subscription map plus the reverse
// index kept inside each Client.
type SubscriptionRegistry struct {
	mu     *sync.RWMutex
	subs   map[string]*Subscription
	conns  *ConnectionRegistry
	logger *slog.Logger
}

// NewRegistries creates the two registries over one shared lock and links
// them for cascading removal.
func NewRegistries(metrics *Metrics, logger *slog.Logger) (*ConnectionRegistry, *SubscriptionRegistry) {
	if logger == nil {
		logger = slog.Default()
	}
	mu := &sync.RWMutex{}
	conns := &ConnectionRegistry{
		mu:      mu,
		clients: make(map[string]*Client),
		metrics: metrics,
		logger:  logger.With("component", "connections"),
	}
	subs := &SubscriptionRegistry{
		mu:     mu,
		subs:   make(map[string]*Subscription),
		conns:  conns,
		logger: logger.With("component", "subscriptions"),
	}
	conns.subs = subs
	return conns, subs
}

// Register adds a new client. Ids are generated collision-resistant, so an
// existing id is a caller bug and fails loudly.
func (r *ConnectionRegistry) Register(client *Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[client.ID]; exists {
		return ErrClientExists
	}
	r.clients[client.ID] = client
	r.metrics.Connections.Inc()

	r.logger.Info("client connected",
		"client_id", client.ID,
		"remote_addr", client.RemoteAddr(),
		"total_clients", len(r.clients),
	)
	return nil
}

// Get returns the client for id.
func (r *ConnectionRegistry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.clients[id]
	return client, ok
}

// Remove deletes the client and, atomically under the same lock, every
// subscription it owns.
func (r *ConnectionRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	client, exists := r.clients[id]
	if !exists {
		return
	}
	delete(r.clients, id)
	r.metrics.Connections.Dec()
	removed := r.subs.removeAllForClientLocked(client)

	r.logger.Info("client disconnected",
		"client_id", id,
		"subscriptions_removed", removed,
		"total_clients", len(r.clients),
	)
}

// Snapshot returns a point-in-time copy of the live clients. Iterating the
// copy never races with concurrent registration or removal.
func (r *ConnectionRegistry) Snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		out = append(out, client)
	}
	return out
}

// Len returns the number of live clients.
func (r *ConnectionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Clear empties both registries. Used on shutdown after transports are closed.
func (r *ConnectionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.clients {
		delete(r.clients, id)
	}
	for id := range r.subs.subs {
		delete(r.subs.subs, id)
	}
	r.metrics.Connections.Set(0)
}

// Add registers a subscription for its owning client. Fails with
// ErrClientNotFound if the owner is no longer connected, which keeps every
// stored subscription resolvable.
func (s *SubscriptionRegistry) Add(sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.conns.clients[sub.ClientID]
	if !ok {
		return ErrClientNotFound
	}

	s.subs[sub.ID] = sub
	client.subscriptions[sub.ID] = struct{}{}

	s.logger.Debug("subscription added",
		"subscription_id", sub.ID,
		"type", sub.Type,
		"client_id", sub.ClientID,
	)
	return nil
}

// Remove deletes a subscription and drops it from the owning client's set.
// Unknown ids yield ErrSubscriptionNotFound, reported to the requesting
// client only.
func (s *SubscriptionRegistry) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subs, id)

	if client, ok := s.conns.clients[sub.ClientID]; ok {
		delete(client.subscriptions, id)
	}

	s.logger.Debug("subscription removed",
		"subscription_id", id,
		"client_id", sub.ClientID,
	)
	return nil
}

// RemoveAllForClient removes every subscription owned by clientID.
func (s *SubscriptionRegistry) RemoveAllForClient(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.conns.clients[clientID]
	if !ok {
		// Client already gone; sweep the map by owner instead.
		for id, sub := range s.subs {
			if sub.ClientID == clientID {
				delete(s.subs, id)
			}
		}
		return
	}
	s.removeAllForClientLocked(client)
}

// removeAllForClientLocked is the cascade used by ConnectionRegistry.Remove.
// Caller holds the shared lock.
func (s *SubscriptionRegistry) removeAllForClientLocked(client *Client) int {
	removed := 0
	for id := range client.subscriptions {
		delete(s.subs, id)
		delete(client.subscriptions, id)
		removed++
	}
	return removed
}

// Matching returns a snapshot of the subscriptions whose category covers the
// given domain event type.
func (s *SubscriptionRegistry) Matching(eventType string) []*Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Subscription
	for _, sub := range s.subs {
		if sub.Type.Covers(eventType) {
			out = append(out, sub)
		}
	}
	return out
}

// Get returns the subscription for id.
func (s *SubscriptionRegistry) Get(id string) (*Subscription, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	return sub, ok
}

// CountByType returns subscription counts per category.
func (s *SubscriptionRegistry) CountByType() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int)
	for _, sub := range s.subs {
		out[string(sub.Type)]++
	}
	return out
}

// Len returns the number of active subscriptions.
func (s *SubscriptionRegistry) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}
