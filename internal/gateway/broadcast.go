// ABOUTME: Event broadcast engine: fans domain events out to subscribers.
// ABOUTME: Send failures are logged, never reaped here (liveness owns cleanup).

package gateway

import (
	"log/slog"

	"github.com/relayforge/relay/internal/backend"
	"github.com/relayforge/relay/internal/protocol"
)

// Broadcaster delivers domain events to matching subscriptions. One instance
// per gateway; handleEvent runs on its own goroutine per inbound event.
type Broadcaster struct {
	conns   *ConnectionRegistry
	subs    *SubscriptionRegistry
	sink    backend.ErrorSink
	metrics *Metrics
	logger  *slog.Logger
}

// NewBroadcaster creates the broadcast engine over the two registries.
func NewBroadcaster(conns *ConnectionRegistry, subs *SubscriptionRegistry, sink backend.ErrorSink, metrics *Metrics, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		conns:   conns,
		subs:    subs,
		sink:    sink,
		metrics: metrics,
		logger:  logger.With("component", "broadcast"),
	}
}

// Broadcast matches the event against the subscription registry and attempts
// one send per matching subscription. A failed send does not remove the
// client: reaping dead connections is exclusively the liveness supervisor's
// job, which keeps cleanup single-owner.
func (b *Broadcaster) Broadcast(event backend.Event) {
	matching := b.subs.Matching(event.Type)
	if len(matching) == 0 {
		return
	}

	env, err := protocol.NewEvent("", protocol.EventData{
		Type:    event.Type,
		Payload: event.Payload,
	})
	if err != nil {
		b.logger.Error("encoding broadcast event", "event_type", event.Type, "error", err)
		return
	}

	for _, sub := range matching {
		if !protocol.MatchFilter(event.Payload, sub.Filter) {
			continue
		}

		client, ok := b.conns.Get(sub.ClientID)
		if !ok {
			// Subscription raced with client removal; the registries have
			// already cleaned it up by the time we would resend.
			continue
		}

		if err := client.Send(env); err != nil {
			b.metrics.BroadcastsDropped.Inc()
			b.logger.Warn("broadcast send failed",
				"event_type", event.Type,
				"client_id", client.ID,
				"subscription_id", sub.ID,
				"error", err,
			)
			b.sink.Report(err, map[string]any{
				"client_id": client.ID,
				"user_id":   client.UserID(),
				"operation": "broadcast",
			})
			continue
		}
		b.metrics.BroadcastsDelivered.Inc()
	}
}
