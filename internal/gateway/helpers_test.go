// ABOUTME: Shared test doubles for the gateway package.
// ABOUTME: Mock transport, mock executor, and a test gateway constructor.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relay/internal/auth"
	"github.com/relayforge/relay/internal/backend"
	"github.com/relayforge/relay/internal/config"
	"github.com/relayforge/relay/internal/events"
	"github.com/relayforge/relay/internal/protocol"
)

const testSecret = "gateway-test-secret"

// mockTransport records written frames and pings.
type mockTransport struct {
	mu         sync.Mutex
	frames     [][]byte
	pings      int
	closed     bool
	failWrites bool
}

func (m *mockTransport) WriteMessage(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites || m.closed {
		return errors.New("broken pipe")
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	m.frames = append(m.frames, frame)
	return nil
}

func (m *mockTransport) Ping(_ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("broken pipe")
	}
	m.pings++
	return nil
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockTransport) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockTransport) pingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

// envelopes decodes every written frame.
func (m *mockTransport) envelopes(t *testing.T) []*protocol.Envelope {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*protocol.Envelope, 0, len(m.frames))
	for _, frame := range m.frames {
		var env protocol.Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, &env)
	}
	return out
}

// lastEnvelope returns the most recent written envelope.
func (m *mockTransport) lastEnvelope(t *testing.T) *protocol.Envelope {
	t.Helper()
	envs := m.envelopes(t)
	require.NotEmpty(t, envs, "no envelope written")
	return envs[len(envs)-1]
}

// errorData decodes an error envelope's payload.
func errorData(t *testing.T, env *protocol.Envelope) protocol.ErrorData {
	t.Helper()
	require.Equal(t, protocol.MessageError, env.Type)
	var data protocol.ErrorData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

// mockExecutor implements backend.Executor with pluggable behavior.
type mockExecutor struct {
	executeAgent    func(ctx context.Context, id, input string) (any, error)
	getAgent        func(ctx context.Context, id string) (*backend.AgentInfo, error)
	executeWorkflow func(ctx context.Context, id, input string) (any, error)
}

func (m *mockExecutor) ExecuteAgent(ctx context.Context, id, input string) (any, error) {
	if m.executeAgent == nil {
		return "ok", nil
	}
	return m.executeAgent(ctx, id, input)
}

func (m *mockExecutor) GetAgent(ctx context.Context, id string) (*backend.AgentInfo, error) {
	if m.getAgent == nil {
		return &backend.AgentInfo{ID: id, Status: "idle"}, nil
	}
	return m.getAgent(ctx, id)
}

func (m *mockExecutor) ExecuteWorkflow(ctx context.Context, id, input string) (any, error) {
	if m.executeWorkflow == nil {
		return "ok", nil
	}
	return m.executeWorkflow(ctx, id, input)
}

// nopSink discards managed errors.
type nopSink struct{}

func (nopSink) Report(error, map[string]any) {}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Gateway: config.GatewayConfig{
			HeartbeatInterval: 30 * time.Second,
			SweepInterval:     60 * time.Second,
			IdleTimeout:       5 * time.Minute,
			CommandTimeout:    2 * time.Second,
		},
	}
}

// newTestGateway builds a gateway over an in-memory bus and mock executor.
// The returned bus is the domain event source.
func newTestGateway(t *testing.T, executor backend.Executor) (*Gateway, *events.Bus) {
	t.Helper()
	if executor == nil {
		executor = &mockExecutor{}
	}

	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)

	bus := events.NewBus(nil)
	gw, err := New(testConfig(), Deps{
		Source:   bus,
		Executor: executor,
		Verifier: verifier,
		Sink:     nopSink{},
	}, slog.Default())
	require.NoError(t, err)
	return gw, bus
}

// addClient registers a client over a fresh mock transport.
func addClient(t *testing.T, g *Gateway) (*Client, *mockTransport) {
	t.Helper()
	mt := &mockTransport{}
	client := NewClient(uuid.New().String(), mt, "192.0.2.1:1234", "test-agent", slog.Default())
	require.NoError(t, g.conns.Register(client))
	client.setState(StateOpen)
	return client, mt
}

// testToken mints a JWT accepted by the test verifier.
func testToken(t *testing.T, userID string) string {
	t.Helper()
	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	token, err := verifier.Generate(userID, time.Hour)
	require.NoError(t, err)
	return token
}
