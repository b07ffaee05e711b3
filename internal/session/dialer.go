package session

import (
	"context"

	"github.com/gorilla/websocket"
)

// maxFrameBytes bounds a single inbound frame.
const maxFrameBytes = 64 * 1024

// Conn is the subset of *websocket.Conn used by the session.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens WebSocket connections.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// WebsocketDialer dials with gorilla/websocket.
type WebsocketDialer struct {
	// Dialer, if nil, defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// DialContext opens a client connection to url.
func (d WebsocketDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameBytes)
	return conn, nil
}
