package stream

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/splax/deploystream/internal/events"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSSEWriterFrames(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec, discardLogger())
	if err != nil {
		t.Fatalf("new sse writer: %v", err)
	}
	if err := w.Send(events.Start("Starting helm deployment...")); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := w.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if err := w.Send(events.Complete()); err != nil {
		t.Fatalf("send: %v", err)
	}

	want := "data: {\"type\":\"start\",\"message\":\"Starting helm deployment...\"}\n\n" +
		": keepalive\n\n" +
		"data: {\"type\":\"complete\"}\n\n"
	if got := rec.Body.String(); got != want {
		t.Fatalf("unexpected body:\n%q\nwant:\n%q", got, want)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestSSEWriterClosed(t *testing.T) {
	rec := httptest.NewRecorder()
	w, err := NewSSEWriter(rec, discardLogger())
	if err != nil {
		t.Fatalf("new sse writer: %v", err)
	}
	w.Close()
	if err := w.Send(events.Info("late")); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after close, got %v", err)
	}
}

type failingWriter struct {
	header http.Header
}

func (f *failingWriter) Header() http.Header       { return f.header }
func (f *failingWriter) WriteHeader(int)           {}
func (f *failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }
func (f *failingWriter) Flush()                    {}

func TestSSEWriterStopsAfterWriteError(t *testing.T) {
	w, err := NewSSEWriter(&failingWriter{header: http.Header{}}, discardLogger())
	if err != nil {
		t.Fatalf("new sse writer: %v", err)
	}
	first := w.Send(events.Info("x"))
	if first == nil {
		t.Fatalf("expected write error")
	}
	if err := w.Heartbeat(); err != first {
		t.Fatalf("expected sticky error %v, got %v", first, err)
	}
}

type plainWriter struct{ http.ResponseWriter }

func TestSSEWriterRequiresFlusher(t *testing.T) {
	if _, err := NewSSEWriter(plainWriter{httptest.NewRecorder()}, discardLogger()); err == nil {
		t.Fatalf("expected error for writer without flush support")
	}
}
