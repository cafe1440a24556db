package poller

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/splax/deploystream/internal/events"
)

const (
	// MaxLines bounds the raw snapshot kept per poll.
	MaxLines = 20
	// MaxPods bounds the pod events surfaced per status change.
	MaxPods = 15

	statusHeader = "📦 Pod Status:"
)

// Source produces a textual snapshot of workload state in a namespace.
type Source interface {
	Snapshot(ctx context.Context, namespace string) (string, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, namespace string) (string, error)

// Snapshot calls f.
func (f SourceFunc) Snapshot(ctx context.Context, namespace string) (string, error) {
	return f(ctx, namespace)
}

// Poller reports namespace status only when it differs from the previous successful poll.
// It is not safe for concurrent use; one deployment stream owns one Poller.
type Poller struct {
	source    Source
	namespace string
	logger    *slog.Logger
	last      string
}

// New creates a Poller for namespace.
func New(source Source, namespace string, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Poller{source: source, namespace: namespace, logger: logger}
}

// Poll takes one snapshot and returns a pods header followed by pod lines when the
// status changed, or nil. Poll failures are logged and yield no events.
func (p *Poller) Poll(ctx context.Context) []events.Event {
	text, err := p.source.Snapshot(ctx, p.namespace)
	if err != nil {
		p.logger.Debug("pod poll failed", "namespace", p.namespace, "error", err)
		return nil
	}
	status := truncateLines(strings.TrimSpace(text), MaxLines)
	if status == "" || status == p.last {
		return nil
	}
	p.last = status

	out := []events.Event{events.Pods(statusHeader)}
	for i, line := range strings.Split(status, "\n") {
		if i >= MaxPods {
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, events.Pod(line))
	}
	return out
}

// Last returns the most recent status text that produced events.
func (p *Poller) Last() string {
	return p.last
}

func truncateLines(text string, limit int) string {
	lines := strings.SplitN(text, "\n", limit+1)
	if len(lines) <= limit {
		return text
	}
	return strings.TrimSpace(strings.Join(lines[:limit], "\n"))
}
