// ABOUTME: End-to-end tests over real WebSocket connections.
// ABOUTME: Starts a gateway on a loopback port and drives it with gorilla dialers.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayforge/relay/internal/backend"
	"github.com/relayforge/relay/internal/events"
	"github.com/relayforge/relay/internal/protocol"
)

// startGateway runs a gateway on an ephemeral loopback port.
func startGateway(t *testing.T, executor backend.Executor) (*Gateway, *events.Bus) {
	t.Helper()
	g, bus := newTestGateway(t, executor)
	require.NoError(t, g.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = g.Shutdown(ctx)
	})
	return g, bus
}

// dial opens a client connection and consumes the welcome event.
func dial(t *testing.T, g *Gateway) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+g.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	env := readEnvelope(t, conn)
	require.Equal(t, protocol.MessageEvent, env.Type)
	var welcome protocol.ConnectionEstablished
	require.NoError(t, json.Unmarshal(env.Data, &welcome))
	require.Equal(t, "connection.established", welcome.Type)
	require.NotEmpty(t, welcome.ClientID)
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	return env
}

func writeJSON(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// subscribe sends a subscribe frame and returns the created subscription id.
func subscribe(t *testing.T, conn *websocket.Conn, subType string) string {
	t.Helper()
	writeJSON(t, conn, `{"type":"subscribe","id":"sub-req","data":{"type":"`+subType+`"}}`)
	env := readEnvelope(t, conn)
	require.Equal(t, protocol.MessageEvent, env.Type)
	var created protocol.SubscriptionCreated
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.Equal(t, "subscription.created", created.Type)
	return created.SubscriptionID
}

func TestWS_SubscribeEmitReceive(t *testing.T) {
	g, bus := startGateway(t, nil)
	conn := dial(t, g)

	subscribe(t, conn, "agent-status")

	// Emit is asynchronous from the client's view; the subscription is
	// registered before the subscribe reply is written, so this event
	// cannot be missed.
	bus.Emit(backend.Event{
		Type:    "agent.updated",
		Payload: map[string]any{"agentId": "agent-1", "status": "running"},
	})

	env := readEnvelope(t, conn)
	require.Equal(t, protocol.MessageEvent, env.Type)
	var data protocol.EventData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "agent.updated", data.Type)
	assert.Equal(t, "agent-1", data.Payload["agentId"])
	assert.Equal(t, "running", data.Payload["status"])
}

func TestWS_FirehoseDeliversOneCopyEach(t *testing.T) {
	g, bus := startGateway(t, nil)
	connA := dial(t, g)
	connB := dial(t, g)

	subscribe(t, connA, "events")
	subscribe(t, connB, "events")

	bus.Emit(backend.Event{Type: "workflow.started", Payload: map[string]any{"workflowId": "wf-1"}})

	for _, conn := range []*websocket.Conn{connA, connB} {
		env := readEnvelope(t, conn)
		var data protocol.EventData
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "workflow.started", data.Type)
	}

	// Exactly one copy: a follow-up ping drains each connection and proves
	// no duplicate event is queued ahead of the pong.
	for _, conn := range []*websocket.Conn{connA, connB} {
		writeJSON(t, conn, `{"type":"ping","id":"drain"}`)
		env := readEnvelope(t, conn)
		assert.Equal(t, protocol.MessagePong, env.Type)
		assert.Equal(t, "drain", env.ID)
	}
}

func TestWS_FilterNarrowsDelivery(t *testing.T) {
	g, bus := startGateway(t, nil)
	conn := dial(t, g)

	writeJSON(t, conn, `{"type":"subscribe","id":"s-1","data":{"type":"agent-status","filter":{"agentId":"agent-2"}}}`)
	env := readEnvelope(t, conn)
	require.Equal(t, protocol.MessageEvent, env.Type)

	bus.Emit(backend.Event{Type: "agent.updated", Payload: map[string]any{"agentId": "agent-1"}})
	bus.Emit(backend.Event{Type: "agent.updated", Payload: map[string]any{"agentId": "agent-2"}})

	got := readEnvelope(t, conn)
	var data protocol.EventData
	require.NoError(t, json.Unmarshal(got.Data, &data))
	assert.Equal(t, "agent-2", data.Payload["agentId"])
}

func TestWS_UnauthenticatedCommandKeepsConnectionOpen(t *testing.T) {
	g, _ := startGateway(t, nil)
	conn := dial(t, g)

	writeJSON(t, conn, `{"type":"agent-command","id":"c-1","data":{"targetId":"agent-1","command":"execute"}}`)

	env := readEnvelope(t, conn)
	data := errorData(t, env)
	assert.Equal(t, protocol.CodeAuthRequired, data.Error)
	assert.Contains(t, data.Message, "Authentication required")

	// Connection survives the rejected command.
	writeJSON(t, conn, `{"type":"ping","id":"p-1"}`)
	pong := readEnvelope(t, conn)
	assert.Equal(t, protocol.MessagePong, pong.Type)
}

func TestWS_AuthenticatedCommandRoundTrip(t *testing.T) {
	executed := make(chan string, 1)
	executor := &mockExecutor{
		executeAgent: func(_ context.Context, id, input string) (any, error) {
			executed <- id
			return map[string]any{"echo": input}, nil
		},
	}
	g, _ := startGateway(t, executor)
	conn := dial(t, g)
	token := testToken(t, "operator-1")

	// Privileged subscribe authenticates the connection for later commands.
	writeJSON(t, conn, `{"type":"subscribe","id":"s-1","data":{"type":"agent-commands","token":"`+token+`"}}`)
	env := readEnvelope(t, conn)
	require.Equal(t, protocol.MessageEvent, env.Type)

	writeJSON(t, conn, `{"type":"agent-command","id":"c-1","data":{"targetId":"agent-7","command":"execute","params":{"input":"hello"}}}`)

	reply := readEnvelope(t, conn)
	require.Equal(t, protocol.MessageEvent, reply.Type)
	assert.Equal(t, "c-1", reply.ID)

	var result protocol.CommandResult
	require.NoError(t, json.Unmarshal(reply.Data, &result))
	assert.Equal(t, "agent.command.result", result.Type)
	assert.Equal(t, "agent-7", result.TargetID)
	assert.Equal(t, "execute", result.Command)
	assert.Equal(t, "agent-7", <-executed)
}

func TestWS_MalformedFrameGetsErrorNotDisconnect(t *testing.T) {
	g, _ := startGateway(t, nil)
	conn := dial(t, g)

	writeJSON(t, conn, `{not json`)
	env := readEnvelope(t, conn)
	assert.Equal(t, protocol.CodeMalformedMessage, errorData(t, env).Error)

	writeJSON(t, conn, `{"type":"teleport"}`)
	env = readEnvelope(t, conn)
	assert.Equal(t, protocol.CodeUnknownMessageType, errorData(t, env).Error)

	writeJSON(t, conn, `{"type":"ping","id":"still-here"}`)
	pong := readEnvelope(t, conn)
	assert.Equal(t, "still-here", pong.ID)
}

func TestWS_UnsubscribeStopsDelivery(t *testing.T) {
	g, bus := startGateway(t, nil)
	conn := dial(t, g)

	subID := subscribe(t, conn, "workflow-progress")
	writeJSON(t, conn, `{"type":"unsubscribe","id":"u-1","data":{"subscriptionId":"`+subID+`"}}`)
	env := readEnvelope(t, conn)
	require.Equal(t, protocol.MessageEvent, env.Type)

	bus.Emit(backend.Event{Type: "workflow.completed", Payload: map[string]any{"workflowId": "wf-9"}})

	// Only the pong arrives; the unsubscribed event does not.
	writeJSON(t, conn, `{"type":"ping","id":"after"}`)
	got := readEnvelope(t, conn)
	assert.Equal(t, protocol.MessagePong, got.Type)
	assert.Equal(t, "after", got.ID)
}

func TestWS_DisconnectCascadesSubscriptions(t *testing.T) {
	g, _ := startGateway(t, nil)
	conn := dial(t, g)

	subscribe(t, conn, "events")
	subscribe(t, conn, "agent-status")
	require.Equal(t, 2, g.subs.Len())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool {
		return g.conns.Len() == 0 && g.subs.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWS_ShutdownClosesConnections(t *testing.T) {
	g, _ := newTestGateway(t, nil)
	require.NoError(t, g.Start())
	conn := dial(t, g)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, g.Shutdown(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWS_HTTPEndpoints(t *testing.T) {
	g, _ := startGateway(t, nil)
	conn := dial(t, g)
	subscribe(t, conn, "events")

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get("http://" + g.Addr() + "/health")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := http.Get("http://" + g.Addr() + "/stats")
		require.NoError(t, err)
		defer resp.Body.Close()

		var stats Stats
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
		assert.Equal(t, 1, stats.Connections)
		assert.Equal(t, 1, stats.Subscriptions["events"])
	})
}
