// ABOUTME: Protocol error codes and the error envelope payload.
// ABOUTME: Every per-message failure maps to one code; none are fatal.

package protocol

import (
	"encoding/json"
	"time"
)

// ErrorCode identifies a per-message failure class carried in an error
// envelope. Connections survive all of them; only transport faults and
// shutdown terminate a connection.
type ErrorCode string

const (
	CodeMalformedMessage     ErrorCode = "malformed_message"
	CodeUnknownMessageType   ErrorCode = "unknown_message_type"
	CodeSubscriptionNotFound ErrorCode = "subscription_not_found"
	CodeAuthTokenMissing     ErrorCode = "auth_token_missing"
	CodeAuthTokenInvalid     ErrorCode = "auth_token_invalid"
	CodeAuthRequired         ErrorCode = "auth_required"
	CodeUnknownCommand       ErrorCode = "unknown_command"
	CodeCommandFailed        ErrorCode = "command_failed"
	CodeCommandTimeout       ErrorCode = "command_timeout"
	CodeNotImplemented       ErrorCode = "not_implemented"
)

// ErrorData is the payload of a server-to-client error envelope.
type ErrorData struct {
	Message string    `json:"message"`
	Error   ErrorCode `json:"error,omitempty"`
}

// NewError builds an error envelope correlated to id when non-empty.
func NewError(id string, code ErrorCode, message string) *Envelope {
	env := &Envelope{
		Type:      MessageError,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	// ErrorData marshals without error for any inputs.
	env.Data = mustMarshal(ErrorData{Message: message, Error: code})
	return env
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
