package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
)

// WSTransport adapts an nhooyr.io/websocket connection to Transport,
// mirroring the teacher's tradernet websocket client: a mutex-guarded
// connection, context-scoped read/write, and JSON framing.
type WSTransport struct {
	mu   sync.Mutex
	conn *websocket.Conn
	ctx  context.Context
}

// NewWSTransport wraps an already-established websocket connection.
func NewWSTransport(ctx context.Context, conn *websocket.Conn) *WSTransport {
	return &WSTransport{conn: conn, ctx: ctx}
}

// Send writes one envelope as a JSON text frame.
func (t *WSTransport) Send(env Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return t.conn.Write(t.ctx, websocket.MessageText, data)
}

// Receive blocks for the next JSON text frame and decodes it into an envelope.
func (t *WSTransport) Receive() (Envelope, error) {
	_, data, err := t.conn.Read(t.ctx)
	if err != nil {
		return Envelope{}, fmt.Errorf("read frame: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return env, nil
}

// Close closes the underlying connection with a normal closure code.
func (t *WSTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "session complete")
}
