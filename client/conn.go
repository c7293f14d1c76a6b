package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"go.chrisrx.dev/modelserver/message"
)

const (
	writeTimeout = 5 * time.Second
	closeTimeout = 1 * time.Second
)

// Conn is a subscription connection. Writes are serialized so keep-alive and
// caller sends may share it.
type Conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func NewConn(ctx context.Context, dialer *websocket.Dialer, addr string) (*Conn, error) {
	ws, resp, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return &Conn{ws: ws}, nil
}

func (c *Conn) WriteMessage(msg *message.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Conn) ReadMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

// Close sends a normal closure frame and closes the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, m, time.Now().Add(closeTimeout))
	return c.ws.Close()
}
