// ABOUTME: Represents a single connected client and its per-connection state.
// ABOUTME: Owns the transport handle and the connection metadata counters.

package gateway

import (
	"log/slog"
	"sync"
	"time"

	"github.com/relayforge/relay/internal/protocol"
)

// ConnState is the per-connection protocol state.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Client is one live connection. It is created on transport accept and
// destroyed on close, error, or reaping. The transport handle is exclusively
// owned by the client; all outbound frames go through Send.
type Client struct {
	ID string

	transport  Transport
	remoteAddr string
	userAgent  string

	// subscriptions is the set of subscription ids owned by this client.
	// It is a back-reference only and is guarded by the registry lock, not
	// by mu: every mutation happens inside a registry critical section.
	subscriptions map[string]struct{}

	mu               sync.RWMutex
	userID           string
	authenticated    bool
	state            ConnState
	connectedAt      time.Time
	lastActivity     time.Time
	messagesSent     uint64
	messagesReceived uint64

	closeOnce sync.Once
	logger    *slog.Logger
}

// NewClient creates a client for an accepted transport.
func NewClient(id string, transport Transport, remoteAddr, userAgent string, logger *slog.Logger) *Client {
	now := time.Now()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		ID:            id,
		transport:     transport,
		remoteAddr:    remoteAddr,
		userAgent:     userAgent,
		subscriptions: make(map[string]struct{}),
		state:         StateConnecting,
		connectedAt:   now,
		lastActivity:  now,
		logger:        logger.With("client_id", id),
	}
}

// Send encodes the envelope and writes it to the transport, counting the
// message on success.
func (c *Client) Send(env *protocol.Envelope) error {
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if err := c.transport.WriteMessage(frame); err != nil {
		return err
	}

	c.mu.Lock()
	c.messagesSent++
	c.mu.Unlock()
	return nil
}

// Touch records inbound activity. Called on every received frame and on
// transport-level pongs; the liveness sweep reads it back.
func (c *Client) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// CountReceived counts one inbound message and records activity.
func (c *Client) CountReceived() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.messagesReceived++
	c.mu.Unlock()
}

// LastActivity returns the time of the most recent inbound frame or pong.
func (c *Client) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// ConnectedAt returns the accept time.
func (c *Client) ConnectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedAt
}

// Counters returns the aggregate sent/received message counts.
func (c *Client) Counters() (sent, received uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.messagesSent, c.messagesReceived
}

// RemoteAddr returns the peer address recorded at accept time.
func (c *Client) RemoteAddr() string { return c.remoteAddr }

// UserAgent returns the peer's User-Agent recorded at accept time.
func (c *Client) UserAgent() string { return c.userAgent }

// Authenticated reports whether the client has passed the auth gate.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// SetUser records the verified user and marks the client authenticated.
// The transition is monotonic; it is never reversed while connected.
func (c *Client) SetUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.authenticated {
		return
	}
	c.userID = userID
	c.authenticated = true
}

// UserID returns the verified user, empty until authentication succeeds.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// State returns the connection state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// setState advances the connection state machine. Transitions only move
// forward; a stale transition is ignored.
func (c *Client) setState(s ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s > c.state {
		c.state = s
	}
}

// closeTransport closes the underlying transport exactly once.
func (c *Client) closeTransport() {
	c.closeOnce.Do(func() {
		if err := c.transport.Close(); err != nil {
			c.logger.Debug("transport close", "error", err)
		}
	})
}
