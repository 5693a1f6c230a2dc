// Package events provides the in-memory domain event bus.
//
// The bus implements backend.EventSource for in-process deployments: the
// execution backend emits agent and workflow state changes into it, and the
// gateway's broadcast engine subscribes to the firehose. Pattern
// subscriptions ("agent.*") are available for narrower consumers.
package events
