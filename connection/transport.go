package connection

import (
	"context"

	"github.com/gorilla/websocket"
)

// Transport is one live bidirectional message channel to a kernel. Reads are
// owned by the connection's receiver goroutine and writes by its send lock;
// implementations need not add their own synchronization beyond that.
type Transport interface {
	// ReadMessage blocks until the next frame arrives or the transport fails.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one frame.
	WriteMessage(data []byte) error
	// Close tears down the transport, unblocking any pending read.
	Close() error
}

// Dialer opens a fresh Transport to the connection's kernel. The connection
// calls it once at startup and again on every reconnect.
type Dialer func(ctx context.Context) (Transport, error)

type wsTransport struct {
	conn *websocket.Conn
}

// NewWebsocketTransport wraps a websocket connection as a Transport.
func NewWebsocketTransport(conn *websocket.Conn) Transport {
	return &wsTransport{conn: conn}
}

func (t *wsTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

func (t *wsTransport) WriteMessage(data []byte) error {
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *wsTransport) Close() error {
	return t.conn.Close()
}
