package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/splax/deploystream/pkg/telemetry"
)

// Mode identifies how a deployment was requested.
type Mode string

const (
	ModeStream Mode = "stream"
	ModeSync   Mode = "sync"
	ModeDryRun Mode = "dry_run"
)

// Status is the final state of a deployment as observed by the service.
type Status string

const (
	StatusSuccess      Status = "success"
	StatusFailed       Status = "failed"
	StatusRejected     Status = "rejected"
	StatusDisconnected Status = "disconnected"
)

// Outcome summarises a finished deployment request.
type Outcome struct {
	ID         string
	DeployType string
	Version    string
	Mode       Mode
	Status     Status
	ExitCode   int
	Message    string
	Output     string
	Started    time.Time
	Duration   time.Duration
}

// StepError reports a command that exited with a nonzero code.
type StepError struct {
	Stage    string
	ExitCode int
	Stderr   string
	Output   string
}

func (e *StepError) Error() string {
	detail := strings.TrimSpace(e.Stderr)
	if detail == "" {
		detail = fmt.Sprintf("exit code %d", e.ExitCode)
	}
	return fmt.Sprintf("%s failed: %s", e.Stage, detail)
}

func (o Outcome) event() telemetry.Event {
	code := o.ExitCode
	return telemetry.Event{
		DeploymentID:   o.ID,
		DeploymentType: o.DeployType,
		Version:        o.Version,
		Mode:           string(o.Mode),
		Status:         string(o.Status),
		ExitCode:       &code,
		Message:        o.Message,
		DurationMS:     o.Duration.Milliseconds(),
		OccurredAt:     o.Started.Add(o.Duration),
	}
}

// notify publishes the outcome without blocking on the caller's context.
func (s *Service) notify(ctx context.Context, p plan, o Outcome) {
	if s.telemetry == nil || o.ID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.telemetryTimeout)
	defer cancel()
	if err := s.telemetry.Emit(ctx, o.event()); err != nil {
		p.logger.Warn("deployment callback failed", "error", err)
	}
}

func (p plan) outcome(mode Mode) Outcome {
	return Outcome{
		ID:         p.id,
		DeployType: p.deployType,
		Version:    p.version,
		Mode:       mode,
		Started:    p.started,
	}
}
