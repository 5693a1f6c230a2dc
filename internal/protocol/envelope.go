// ABOUTME: Wire envelope types and JSON codec for the gateway protocol.
// ABOUTME: One envelope per WebSocket text frame; type field drives dispatch.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType identifies the kind of envelope on the wire.
type MessageType string

// Inbound and outbound message types.
const (
	MessageSubscribe       MessageType = "subscribe"
	MessageUnsubscribe     MessageType = "unsubscribe"
	MessageEvent           MessageType = "event"
	MessagePing            MessageType = "ping"
	MessagePong            MessageType = "pong"
	MessageError           MessageType = "error"
	MessageAgentCommand    MessageType = "agent-command"
	MessageWorkflowCommand MessageType = "workflow-command"
)

// Codec errors.
var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnknownMessageType = errors.New("unknown message type")
)

// Envelope is one complete protocol message. Data carries the type-specific
// payload and is left as raw JSON until the handler for Type decodes it.
type Envelope struct {
	Type      MessageType     `json:"type"`
	ID        string          `json:"id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	RequestID string          `json:"requestId,omitempty"`
}

// Decode parses a single frame into an Envelope. A frame that is not a JSON
// object yields ErrMalformedMessage; a frame whose type is not one of the
// protocol's message types yields ErrUnknownMessageType.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch env.Type {
	case MessageSubscribe, MessageUnsubscribe, MessageEvent,
		MessagePing, MessagePong, MessageError,
		MessageAgentCommand, MessageWorkflowCommand:
		return &env, nil
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// Encode serializes an envelope, stamping Timestamp if the caller left it
// empty.
func Encode(env *Envelope) ([]byte, error) {
	if env.Timestamp == "" {
		env.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// NewEvent builds an event envelope whose data is the given payload,
// correlated to id when non-empty.
func NewEvent(id string, payload any) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding event payload: %w", err)
	}
	return &Envelope{
		Type:      MessageEvent,
		ID:        id,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// SubscribeData is the payload of a subscribe message.
type SubscribeData struct {
	Type   string         `json:"type"`
	Filter map[string]any `json:"filter,omitempty"`
	Token  string         `json:"token,omitempty"`
}

// UnsubscribeData is the payload of an unsubscribe message.
type UnsubscribeData struct {
	SubscriptionID string `json:"subscriptionId"`
}

// CommandData is the payload of an agent-command or workflow-command message.
type CommandData struct {
	TargetID string          `json:"targetId"`
	Command  string          `json:"command"`
	Params   json.RawMessage `json:"params,omitempty"`
}

// CommandParams are the recognized fields inside CommandData.Params.
type CommandParams struct {
	Input string `json:"input,omitempty"`
}

// CommandResult is the data of the event envelope replying to a command.
type CommandResult struct {
	Type     string `json:"type"`
	TargetID string `json:"targetId"`
	Command  string `json:"command"`
	Result   any    `json:"result,omitempty"`
}

// EventData is the data of a broadcast event envelope.
type EventData struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// SubscriptionCreated is the data of the reply to a successful subscribe.
type SubscriptionCreated struct {
	Type             string `json:"type"`
	SubscriptionID   string `json:"subscriptionId"`
	SubscriptionType string `json:"subscriptionType"`
}

// SubscriptionRemoved is the data of the reply to a successful unsubscribe.
type SubscriptionRemoved struct {
	Type           string `json:"type"`
	SubscriptionID string `json:"subscriptionId"`
}

// ConnectionEstablished is the data of the welcome event sent on accept.
type ConnectionEstablished struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}
