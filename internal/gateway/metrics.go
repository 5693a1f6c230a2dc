// ABOUTME: Prometheus metrics for the gateway, registered per instance.

package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's prometheus collectors. Each gateway instance
// owns its own registry so multiple instances can coexist in tests.
type Metrics struct {
	Registry *prometheus.Registry

	Connections         prometheus.Gauge
	MessagesReceived    prometheus.Counter
	MessagesSent        prometheus.Counter
	BroadcastsDelivered prometheus.Counter
	BroadcastsDropped   prometheus.Counter
	ClientsReaped       prometheus.Counter
}

// NewMetrics creates and registers the gateway collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_connections",
			Help: "Number of live client connections.",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_received_total",
			Help: "Total inbound envelopes decoded from clients.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_sent_total",
			Help: "Total outbound envelopes written to clients.",
		}),
		BroadcastsDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcasts_delivered_total",
			Help: "Broadcast sends that reached a subscriber transport.",
		}),
		BroadcastsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_broadcasts_dropped_total",
			Help: "Broadcast sends that failed at the transport.",
		}),
		ClientsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_clients_reaped_total",
			Help: "Connections removed by the idle-timeout sweep.",
		}),
	}
	reg.MustRegister(
		m.Connections,
		m.MessagesReceived,
		m.MessagesSent,
		m.BroadcastsDelivered,
		m.BroadcastsDropped,
		m.ClientsReaped,
	)
	return m
}
