// ABOUTME: Interfaces to the external execution backend and event source.
// ABOUTME: The gateway consumes these; implementations live outside it.

package backend

import (
	"context"
	"errors"
)

// Event is one domain occurrence pushed by the execution backend, such as an
// agent or workflow state change.
type Event struct {
	Type    string
	Payload map[string]any
}

// EventHandler receives pushed domain events. Handlers are invoked on the
// source's delivery goroutine and must not block.
type EventHandler func(event Event)

// EventSource is the asynchronous feed of domain events the gateway
// broadcasts from.
type EventSource interface {
	// SubscribeAll registers a handler for every event. Returns an
	// unsubscribe function.
	SubscribeAll(handler EventHandler) (unsubscribe func())
	// SubscribeByPattern registers a handler for event types matching any of
	// the given patterns ("agent.*" style, trailing-star prefix match).
	SubscribeByPattern(patterns []string, handler EventHandler) (unsubscribe func())
}

// AgentInfo describes a registered agent.
type AgentInfo struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Status string         `json:"status"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Executor runs agents and workflows. Calls may block for the duration of
// the run; callers bound them with the context.
type Executor interface {
	ExecuteAgent(ctx context.Context, id string, input string) (any, error)
	GetAgent(ctx context.Context, id string) (*AgentInfo, error)
	ExecuteWorkflow(ctx context.Context, id string, input string) (any, error)
}

// ErrorSink receives managed errors for operator visibility. Context fields
// identify the affected client or user.
type ErrorSink interface {
	Report(err error, fields map[string]any)
}

// ErrNoExecutor indicates the gateway runs without an attached execution
// backend.
var ErrNoExecutor = errors.New("no execution backend attached")

// UnavailableExecutor is the Executor used when the gateway runs standalone.
// Every call fails with ErrNoExecutor, surfaced to clients as a command
// failure rather than a fabricated success.
type UnavailableExecutor struct{}

func (UnavailableExecutor) ExecuteAgent(context.Context, string, string) (any, error) {
	return nil, ErrNoExecutor
}

func (UnavailableExecutor) GetAgent(context.Context, string) (*AgentInfo, error) {
	return nil, ErrNoExecutor
}

func (UnavailableExecutor) ExecuteWorkflow(context.Context, string, string) (any, error) {
	return nil, ErrNoExecutor
}
