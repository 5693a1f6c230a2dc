// Package protocol defines the gateway's wire format.
//
// # Overview
//
// Every WebSocket text frame carries exactly one JSON envelope:
//
//	{
//	  "type": "subscribe",
//	  "id": "req-1",
//	  "data": {"type": "agent-status"},
//	  "timestamp": "2026-08-29T12:00:00Z"
//	}
//
// The type field selects the handler; data is type-specific and stays raw
// JSON until decoded by that handler. Client-to-server types: subscribe,
// unsubscribe, ping, agent-command, workflow-command. Server-to-client
// types: event, pong, error.
//
// # Correlation
//
// The optional id is an opaque correlation token. Replies (pong, command
// results, errors) echo the id of the message they answer.
//
// # Errors
//
// Per-message failures are replied as error envelopes with a stable error
// code (see ErrorCode). No protocol error closes the connection.
//
// # Subscriptions and filters
//
// SubscriptionType enumerates the event categories a client may subscribe
// to. Each category covers domain events by type prefix; the "events"
// category is the firehose. An optional filter narrows a subscription to
// payloads matching a flat key/value equality predicate (MatchFilter).
package protocol
