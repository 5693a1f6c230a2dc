// ABOUTME: Command dispatcher: routes agent/workflow commands to the backend.
// ABOUTME: Every verb is explicitly implemented or replies not_implemented.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/relayforge/relay/internal/backend"
	"github.com/relayforge/relay/internal/protocol"
)

// CommandKind is the target kind of a command envelope.
type CommandKind string

const (
	KindAgent    CommandKind = "agent"
	KindWorkflow CommandKind = "workflow"
)

// Verbs accepted per kind. Anything else is unknown_command.
const (
	VerbExecute = "execute"
	VerbStatus  = "status"
	VerbStop    = "stop"   // agent only
	VerbCancel  = "cancel" // workflow only
)

// Dispatcher executes privileged commands against the execution backend and
// builds the correlated reply envelope. The call into the backend is the
// dispatcher's one blocking point and is bounded by timeout.
type Dispatcher struct {
	executor backend.Executor
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher bounded by timeout per backend call.
func NewDispatcher(executor backend.Executor, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		executor: executor,
		timeout:  timeout,
		logger:   logger.With("component", "dispatch"),
	}
}

// Dispatch handles one agent-command or workflow-command envelope for client
// and returns the reply to send back. Replies are always non-nil; no command
// outcome terminates the connection.
func (d *Dispatcher) Dispatch(ctx context.Context, client *Client, env *protocol.Envelope) *protocol.Envelope {
	kind := KindAgent
	if env.Type == protocol.MessageWorkflowCommand {
		kind = KindWorkflow
	}

	if !client.Authenticated() {
		return protocol.NewError(env.ID, protocol.CodeAuthRequired,
			"Authentication required for "+string(kind)+" commands")
	}

	var data protocol.CommandData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return protocol.NewError(env.ID, protocol.CodeMalformedMessage,
			fmt.Sprintf("invalid %s-command data: %v", kind, err))
	}

	var params protocol.CommandParams
	if len(data.Params) > 0 {
		if err := json.Unmarshal(data.Params, &params); err != nil {
			return protocol.NewError(env.ID, protocol.CodeMalformedMessage,
				fmt.Sprintf("invalid command params: %v", err))
		}
	}

	d.logger.Info("dispatching command",
		"kind", kind,
		"command", data.Command,
		"target_id", data.TargetID,
		"client_id", client.ID,
		"user_id", client.UserID(),
	)

	result, code, err := d.run(ctx, kind, data.TargetID, data.Command, params)
	if err != nil {
		if code == protocol.CodeCommandFailed || code == protocol.CodeCommandTimeout {
			return protocol.NewError(env.ID, code,
				fmt.Sprintf("%s command failed: %v", kind, err))
		}
		return protocol.NewError(env.ID, code, err.Error())
	}

	reply, err := protocol.NewEvent(env.ID, protocol.CommandResult{
		Type:     string(kind) + ".command.result",
		TargetID: data.TargetID,
		Command:  data.Command,
		Result:   result,
	})
	if err != nil {
		return protocol.NewError(env.ID, protocol.CodeCommandFailed,
			fmt.Sprintf("%s command failed: encoding result: %v", kind, err))
	}
	return reply
}

// run executes one verb. The (result, code, err) triple is exhaustive per
// verb: implemented verbs call the backend, everything the backend does not
// support replies not_implemented rather than a fabricated success.
func (d *Dispatcher) run(ctx context.Context, kind CommandKind, targetID, command string, params protocol.CommandParams) (any, protocol.ErrorCode, error) {
	switch kind {
	case KindAgent:
		switch command {
		case VerbExecute:
			result, err := d.bounded(ctx, func(ctx context.Context) (any, error) {
				return d.executor.ExecuteAgent(ctx, targetID, params.Input)
			})
			return d.classify(result, err)
		case VerbStatus:
			result, err := d.bounded(ctx, func(ctx context.Context) (any, error) {
				return d.executor.GetAgent(ctx, targetID)
			})
			return d.classify(result, err)
		case VerbStop:
			return nil, protocol.CodeNotImplemented,
				errors.New("agent stop is not implemented by the execution backend")
		}
	case KindWorkflow:
		switch command {
		case VerbExecute:
			result, err := d.bounded(ctx, func(ctx context.Context) (any, error) {
				return d.executor.ExecuteWorkflow(ctx, targetID, params.Input)
			})
			return d.classify(result, err)
		case VerbStatus, VerbCancel:
			return nil, protocol.CodeNotImplemented,
				fmt.Errorf("workflow %s is not implemented by the execution backend", command)
		}
	}
	return nil, protocol.CodeUnknownCommand,
		fmt.Errorf("unknown %s command %q", kind, command)
}

// bounded runs fn under the dispatcher's timeout.
func (d *Dispatcher) bounded(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return fn(ctx)
}

// classify maps a backend outcome to its error code.
func (d *Dispatcher) classify(result any, err error) (any, protocol.ErrorCode, error) {
	if err == nil {
		return result, "", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, protocol.CodeCommandTimeout, err
	}
	return nil, protocol.CodeCommandFailed, err
}
