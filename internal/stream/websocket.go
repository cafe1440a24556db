package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/splax/deploystream/internal/events"
)

const wsWriteTimeout = 10 * time.Second

// WSWriter relays events as websocket text messages.
type WSWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
	log  *slog.Logger
	err  error
}

// NewWSWriter wraps an upgraded websocket connection.
func NewWSWriter(conn *websocket.Conn, logger *slog.Logger) *WSWriter {
	return &WSWriter{conn: conn, log: logger}
}

// Send writes e as one JSON text message.
func (c *WSWriter) Send(e events.Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// Heartbeat sends a ping control frame.
func (c *WSWriter) Heartbeat() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// Close sends a normal closure frame and closes the connection.
func (c *WSWriter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "stream finished")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.err = websocket.ErrCloseSent
	}
	_ = c.conn.Close()
}

func (c *WSWriter) fail(err error) {
	c.err = err
	c.log.Warn("websocket send failed", "error", err)
	_ = c.conn.Close()
}
