package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

// Transport is the frame-level channel a Connection exclusively owns.
// Implementations must tolerate Close being called more than once and
// concurrently with a blocked ReadFrame.
type Transport interface {
	// ReadFrame blocks until the next inbound frame or a transport error.
	ReadFrame() ([]byte, error)

	// WriteFrame writes a single frame, giving up at the deadline.
	// Callers serialize writes; implementations need not.
	WriteFrame(data []byte, deadline time.Time) error

	// Close releases the underlying socket.
	Close() error
}

type wsTransport struct {
	conn *websocket.Conn
}

// NewWebSocketTransport wraps an upgraded gorilla connection as a Transport.
func NewWebSocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteFrame(data []byte, deadline time.Time) error {
	_ = t.conn.SetWriteDeadline(deadline)
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
