// ABOUTME: Subscription type enumeration and event-type matching rules.
// ABOUTME: Defines which domain events each subscription category covers.

package protocol

import "strings"

// SubscriptionType is the fixed enumeration of subscription categories.
type SubscriptionType string

const (
	SubscriptionEvents           SubscriptionType = "events"
	SubscriptionAgentStatus      SubscriptionType = "agent-status"
	SubscriptionWorkflowProgress SubscriptionType = "workflow-progress"
	SubscriptionSystemMetrics    SubscriptionType = "system-metrics"
	SubscriptionAgentCommands    SubscriptionType = "agent-commands"
)

// subscriptionPrefixes maps each category to the event-type prefix it covers.
// SubscriptionEvents is the firehose and matches everything.
var subscriptionPrefixes = map[SubscriptionType]string{
	SubscriptionAgentStatus:      "agent.",
	SubscriptionWorkflowProgress: "workflow.",
	SubscriptionSystemMetrics:    "system.",
	SubscriptionAgentCommands:    "agent.command.",
}

// ParseSubscriptionType validates a client-supplied subscription type string.
func ParseSubscriptionType(s string) (SubscriptionType, bool) {
	switch t := SubscriptionType(s); t {
	case SubscriptionEvents, SubscriptionAgentStatus, SubscriptionWorkflowProgress,
		SubscriptionSystemMetrics, SubscriptionAgentCommands:
		return t, true
	}
	return "", false
}

// RequiresAuth reports whether subscribing to this category needs an
// authenticated client.
func (t SubscriptionType) RequiresAuth() bool {
	return t == SubscriptionAgentCommands || t == SubscriptionSystemMetrics
}

// Covers reports whether a domain event of the given type belongs to this
// subscription category.
func (t SubscriptionType) Covers(eventType string) bool {
	if t == SubscriptionEvents {
		return true
	}
	prefix, ok := subscriptionPrefixes[t]
	return ok && strings.HasPrefix(eventType, prefix)
}
