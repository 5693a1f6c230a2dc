// Package gateway implements the real-time event-subscription and
// command-dispatch gateway.
//
// # Overview
//
// The gateway sits between WebSocket clients and the agent/workflow
// execution backend. It accepts long-lived connections, maintains the
// subscription registry, fans domain events out under filter predicates,
// gates privileged operations behind bearer-token authentication, and reaps
// dead connections.
//
// # Components
//
//   - Client: one live connection with its transport handle and metadata
//   - ConnectionRegistry / SubscriptionRegistry: the only shared mutable
//     state, guarded by one lock so client removal cascades atomically
//   - Broadcaster: matches pushed domain events against subscriptions and
//     attempts one send per match
//   - Dispatcher: routes agent-command/workflow-command envelopes to the
//     execution backend with a bounded timeout
//   - Supervisor: heartbeat pings plus the idle-timeout sweep; the single
//     owner of dead-connection cleanup
//   - Gateway: the composition root with Start/Shutdown/Stats and the HTTP
//     surface (/ws, /health, /health/ready, /stats, optional /metrics)
//
// # Connection Lifecycle
//
// CONNECTING -> OPEN -> CLOSING -> CLOSED. A client is registered on accept
// and greeted with a connection.established event. Explicit close, transport
// error, or reaping moves it to CLOSING; registry cleanup (including every
// owned subscription) completes CLOSED. Reconnection is a brand-new
// identity.
//
// # Error Policy
//
// Per-message failures are replied to the originating client as error
// envelopes and never affect other connections. Only transport faults and
// shutdown terminate a connection; nothing is fatal to the process.
package gateway
