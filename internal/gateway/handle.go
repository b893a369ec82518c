package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/collabai/chat-backend/internal/registry"
)

const defaultWriteTimeout = 5 * time.Second

// connHandle wraps a websocket connection as a registry handle. Writes are
// serialized with a mutex so broadcasts from any goroutine are safe.
type connHandle struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	timeout time.Duration
}

var _ registry.Handle = (*connHandle)(nil)

func newConnHandle(conn *websocket.Conn) *connHandle {
	return &connHandle{conn: conn, timeout: defaultWriteTimeout}
}

func (h *connHandle) Send(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	return h.conn.Write(ctx, websocket.MessageText, payload)
}
