// ABOUTME: Transport abstraction over the WebSocket connection.
// ABOUTME: Serializes data writes; control pings may go out concurrently.

package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the gateway's view of one accepted socket. The read side
// stays with the connection's read loop; Transport covers the write and
// close paths so the broadcast engine and liveness supervisor can share the
// connection safely with the per-connection handler.
type Transport interface {
	// WriteMessage writes one text frame.
	WriteMessage(data []byte) error
	// Ping sends a transport-level ping control frame.
	Ping(deadline time.Time) error
	// Close tears the connection down. Safe to call more than once.
	Close() error
}

const writeTimeout = 10 * time.Second

// wsTransport wraps a gorilla connection. Gorilla permits one concurrent
// data writer, so writes are serialized with a mutex; WriteControl is safe
// concurrently with data writes and takes no lock here.
type wsTransport struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func newWSTransport(conn *websocket.Conn) *wsTransport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) WriteMessage(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Ping(deadline time.Time) error {
	return t.conn.WriteControl(websocket.PingMessage, nil, deadline)
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		// Best effort close frame so well-behaved peers see a clean shutdown.
		t.writeMu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		t.writeMu.Unlock()

		t.closeErr = t.conn.Close()
	})
	return t.closeErr
}
