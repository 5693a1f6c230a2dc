// ABOUTME: WebSocket accept path, per-connection read loop, and message routing.
// ABOUTME: One goroutine per connection; frames are handled in receipt order.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/relayforge/relay/internal/auth"
	"github.com/relayforge/relay/internal/protocol"
)

const maxFrameSize = 1 << 20 // 1MB

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway fronts trusted reverse proxies; origin policy is theirs.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades the request and runs the connection to completion.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	transport := newWSTransport(conn)
	client := NewClient(uuid.New().String(), transport, r.RemoteAddr, r.UserAgent(), g.logger)

	conn.SetReadLimit(maxFrameSize)
	conn.SetPongHandler(func(string) error {
		client.Touch()
		return nil
	})

	if err := g.conns.Register(client); err != nil {
		g.logger.Error("registering client", "client_id", client.ID, "error", err)
		_ = transport.Close()
		return
	}
	client.setState(StateOpen)

	welcome, err := protocol.NewEvent("", protocol.ConnectionEstablished{
		Type:     "connection.established",
		ClientID: client.ID,
	})
	if err == nil {
		g.send(client, welcome)
	}

	g.readLoop(r.Context(), client, conn)

	// Explicit close frame, transport error, or reap: the connection is
	// CLOSING; registry cleanup completes the transition to CLOSED.
	client.setState(StateClosing)
	g.conns.Remove(client.ID)
	client.closeTransport()
	client.setState(StateClosed)
}

// readLoop decodes and dispatches inbound frames until the transport fails
// or the peer closes. Frames are processed inline so a connection's messages
// are never reordered.
func (g *Gateway) readLoop(ctx context.Context, client *Client, conn *websocket.Conn) {
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				g.logger.Warn("transport error", "client_id", client.ID, "error", err)
				g.sink.Report(err, map[string]any{
					"client_id": client.ID,
					"user_id":   client.UserID(),
					"operation": "read",
				})
			}
			return
		}

		client.CountReceived()
		g.metrics.MessagesReceived.Inc()

		env, err := protocol.Decode(frame)
		if err != nil {
			g.send(client, decodeError(err))
			continue
		}

		g.handleEnvelope(ctx, client, env)
	}
}

// handleEnvelope routes one decoded envelope by type.
func (g *Gateway) handleEnvelope(ctx context.Context, client *Client, env *protocol.Envelope) {
	switch env.Type {
	case protocol.MessagePing:
		g.send(client, &protocol.Envelope{Type: protocol.MessagePong, ID: env.ID})

	case protocol.MessagePong:
		// Activity was already recorded; nothing to reply.

	case protocol.MessageSubscribe:
		g.handleSubscribe(client, env)

	case protocol.MessageUnsubscribe:
		g.handleUnsubscribe(client, env)

	case protocol.MessageAgentCommand, protocol.MessageWorkflowCommand:
		g.send(client, g.dispatcher.Dispatch(ctx, client, env))

	default:
		// event and error envelopes are server-to-client only.
		g.send(client, protocol.NewError(env.ID, protocol.CodeUnknownMessageType,
			"clients cannot send "+string(env.Type)+" messages"))
	}
}

// handleSubscribe creates a subscription, authenticating first when the
// category requires it.
func (g *Gateway) handleSubscribe(client *Client, env *protocol.Envelope) {
	var data protocol.SubscribeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		g.send(client, protocol.NewError(env.ID, protocol.CodeMalformedMessage,
			"invalid subscribe data: "+err.Error()))
		return
	}

	subType, ok := protocol.ParseSubscriptionType(data.Type)
	if !ok {
		g.send(client, protocol.NewError(env.ID, protocol.CodeMalformedMessage,
			"unknown subscription type "+data.Type))
		return
	}

	if subType.RequiresAuth() {
		if err := g.gate.Authenticate(client, data.Token); err != nil {
			g.send(client, authError(env.ID, err))
			return
		}
	}

	sub := &Subscription{
		ID:       uuid.New().String(),
		Type:     subType,
		Filter:   data.Filter,
		ClientID: client.ID,
	}
	if err := g.subs.Add(sub); err != nil {
		// Register/Remove raced; the connection is on its way out.
		g.logger.Warn("subscription for departing client", "client_id", client.ID, "error", err)
		return
	}

	reply, err := protocol.NewEvent(env.ID, protocol.SubscriptionCreated{
		Type:             "subscription.created",
		SubscriptionID:   sub.ID,
		SubscriptionType: string(sub.Type),
	})
	if err == nil {
		g.send(client, reply)
	}
}

// handleUnsubscribe removes a subscription by id.
func (g *Gateway) handleUnsubscribe(client *Client, env *protocol.Envelope) {
	var data protocol.UnsubscribeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		g.send(client, protocol.NewError(env.ID, protocol.CodeMalformedMessage,
			"invalid unsubscribe data: "+err.Error()))
		return
	}

	if err := g.subs.Remove(data.SubscriptionID); err != nil {
		g.send(client, protocol.NewError(env.ID, protocol.CodeSubscriptionNotFound,
			"no subscription with id "+data.SubscriptionID))
		return
	}

	reply, err := protocol.NewEvent(env.ID, protocol.SubscriptionRemoved{
		Type:           "subscription.removed",
		SubscriptionID: data.SubscriptionID,
	})
	if err == nil {
		g.send(client, reply)
	}
}

// send writes an envelope to the client, logging instead of failing the
// connection when the transport is broken.
func (g *Gateway) send(client *Client, env *protocol.Envelope) {
	if err := client.Send(env); err != nil {
		g.logger.Warn("send failed", "client_id", client.ID, "type", env.Type, "error", err)
		return
	}
	g.metrics.MessagesSent.Inc()
}

// decodeError maps a codec failure to its error envelope.
func decodeError(err error) *protocol.Envelope {
	if errors.Is(err, protocol.ErrUnknownMessageType) {
		return protocol.NewError("", protocol.CodeUnknownMessageType, err.Error())
	}
	return protocol.NewError("", protocol.CodeMalformedMessage, err.Error())
}

// authError maps a gate failure to its error envelope.
func authError(id string, err error) *protocol.Envelope {
	switch {
	case errors.Is(err, auth.ErrTokenMissing):
		return protocol.NewError(id, protocol.CodeAuthTokenMissing,
			"authentication token required for this subscription type")
	default:
		return protocol.NewError(id, protocol.CodeAuthTokenInvalid, err.Error())
	}
}
