package stream

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/splax/deploystream/internal/events"
)

// SSEWriter streams Server-Sent Events over an HTTP response writer.
type SSEWriter struct {
	mu      sync.Mutex
	writer  io.Writer
	flusher http.Flusher
	log     *slog.Logger
	err     error
}

// NewSSEWriter prepares w for an event stream and writes the response headers.
func NewSSEWriter(w http.ResponseWriter, logger *slog.Logger) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming unsupported by response writer")
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{writer: w, flusher: flusher, log: logger}, nil
}

// Send emits a data frame for e.
func (c *SSEWriter) Send(e events.Event) error {
	payload, err := e.Marshal()
	if err != nil {
		return err
	}
	return c.write("data: %s\n\n", payload)
}

// Heartbeat emits a comment frame to keep intermediaries from closing the connection.
func (c *SSEWriter) Heartbeat() error {
	return c.write(": keepalive\n\n")
}

func (c *SSEWriter) write(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	if _, err := fmt.Fprintf(c.writer, format, args...); err != nil {
		c.err = err
		c.log.Warn("sse write failed", "error", err)
		return err
	}
	c.flusher.Flush()
	return nil
}

// Close marks the stream as closed; later writes return io.EOF.
func (c *SSEWriter) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		c.err = io.EOF
	}
}
