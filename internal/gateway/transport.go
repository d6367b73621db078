package gateway

import (
	"context"

	"github.com/coder/websocket"
)

// maxFrameSize bounds inbound frames; agent payloads can carry long replies.
const maxFrameSize = 4 << 20

// transport abstracts the WebSocket connection so the session state machine
// can be tested against an in-memory implementation.
type transport interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Ping(ctx context.Context) error
	Close(reason string) error
}

// dialFunc opens a transport to the gateway.
type dialFunc func(ctx context.Context, url string) (transport, error)

// wsTransport adapts a coder/websocket connection to the transport interface.
type wsTransport struct {
	conn *websocket.Conn
}

func dialWebSocket(ctx context.Context, url string) (transport, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(maxFrameSize)
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Read(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	return data, err
}

func (t *wsTransport) Write(ctx context.Context, data []byte) error {
	return t.conn.Write(ctx, websocket.MessageText, data)
}

func (t *wsTransport) Ping(ctx context.Context) error {
	return t.conn.Ping(ctx)
}

func (t *wsTransport) Close(reason string) error {
	return t.conn.Close(websocket.StatusNormalClosure, reason)
}
