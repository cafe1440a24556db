package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/splax/deploystream/internal/poller"
	"github.com/splax/deploystream/internal/profile"
	"github.com/splax/deploystream/internal/runner"
	"github.com/splax/deploystream/pkg/telemetry"
)

var (
	// ErrCredentialRequired rejects requests without an API key.
	ErrCredentialRequired = errors.New("api key is required")
	// ErrNoDeployment indicates no deployment profile could be resolved.
	ErrNoDeployment = profile.ErrNotConfigured
)

// Request contains the caller-supplied deployment parameters.
type Request struct {
	APIKey  string `json:"apiKey"`
	Version string `json:"version"`
	DryRun  bool   `json:"dryRun"`
}

// LogValue keeps the credential out of structured logs.
func (r Request) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("api_key_set", strings.TrimSpace(r.APIKey) != ""),
		slog.String("version", r.Version),
		slog.Bool("dry_run", r.DryRun),
	)
}

// Timings bounds every wait the orchestrator performs.
type Timings struct {
	PollInterval      time.Duration
	SettleIterations  int
	MonitorTimeout    time.Duration
	PreCommandTimeout time.Duration
	SyncTimeout       time.Duration
	LogSourceTimeout  time.Duration
	PollTimeout       time.Duration
	JoinTimeout       time.Duration
}

// DefaultTimings returns the production timings.
func DefaultTimings() Timings {
	return Timings{
		PollInterval:      5 * time.Second,
		SettleIterations:  2,
		MonitorTimeout:    300 * time.Second,
		PreCommandTimeout: 600 * time.Second,
		SyncTimeout:       600 * time.Second,
		LogSourceTimeout:  30 * time.Second,
		PollTimeout:       10 * time.Second,
		JoinTimeout:       10 * time.Second,
	}
}

func (t Timings) withDefaults() Timings {
	d := DefaultTimings()
	if t.PollInterval <= 0 {
		t.PollInterval = d.PollInterval
	}
	if t.SettleIterations <= 0 {
		t.SettleIterations = d.SettleIterations
	}
	if t.MonitorTimeout <= 0 {
		t.MonitorTimeout = d.MonitorTimeout
	}
	if t.PreCommandTimeout <= 0 {
		t.PreCommandTimeout = d.PreCommandTimeout
	}
	if t.SyncTimeout <= 0 {
		t.SyncTimeout = d.SyncTimeout
	}
	if t.LogSourceTimeout <= 0 {
		t.LogSourceTimeout = d.LogSourceTimeout
	}
	if t.PollTimeout <= 0 {
		t.PollTimeout = d.PollTimeout
	}
	if t.JoinTimeout <= 0 {
		t.JoinTimeout = d.JoinTimeout
	}
	return t
}

// StatusSourceFunc builds the pod status source for one deployment, given the
// deployment environment and its masker.
type StatusSourceFunc func(env []string, masker runner.Masker) poller.Source

// TelemetryEmitter publishes deployment outcomes.
type TelemetryEmitter interface {
	Emit(ctx context.Context, event telemetry.Event) error
}

// Options customises a Service.
type Options struct {
	Timings      Timings
	StatusSource StatusSourceFunc
	Telemetry    TelemetryEmitter
	// KillOnDisconnect ties child processes to the caller's context. When false, a
	// disconnected caller stops observation only and commands run to completion.
	KillOnDisconnect bool
	TelemetryTimeout time.Duration
}

// Service runs deployments described by the active profile.
type Service struct {
	resolver         profile.Resolver
	runner           *runner.Runner
	logger           *slog.Logger
	timings          Timings
	statusSource     StatusSourceFunc
	telemetry        TelemetryEmitter
	telemetryTimeout time.Duration
	killOnDisconnect bool
	baseEnv          func() []string
}

// New creates a deployment service.
func New(resolver profile.Resolver, r *runner.Runner, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	timings := opts.Timings.withDefaults()
	statusSource := opts.StatusSource
	if statusSource == nil {
		statusSource = func(env []string, masker runner.Masker) poller.Source {
			return poller.NewCommandSource(r, env, timings.PollTimeout, masker)
		}
	}
	telemetryTimeout := opts.TelemetryTimeout
	if telemetryTimeout <= 0 {
		telemetryTimeout = 5 * time.Second
	}
	return &Service{
		resolver:         resolver,
		runner:           r,
		logger:           logger,
		timings:          timings,
		statusSource:     statusSource,
		telemetry:        opts.Telemetry,
		telemetryTimeout: telemetryTimeout,
		killOnDisconnect: opts.KillOnDisconnect,
		baseEnv:          os.Environ,
	}
}

// Health reports whether a deployment profile currently resolves.
func (s *Service) Health(context.Context) error {
	_, _, err := s.resolver.Resolve()
	return err
}

// plan is a validated request bound to its resolved profile.
type plan struct {
	id         string
	deployType string
	profile    profile.Profile
	version    string
	env        []string
	masker     runner.Masker
	logger     *slog.Logger
	started    time.Time
}

func (s *Service) prepare(req Request) (plan, error) {
	if strings.TrimSpace(req.APIKey) == "" {
		return plan{}, ErrCredentialRequired
	}
	name, p, err := s.resolver.Resolve()
	if err != nil {
		return plan{}, err
	}
	if err := p.Validate(); err != nil {
		return plan{}, err
	}
	version := p.ResolveVersion(req.Version)
	id := uuid.NewString()
	return plan{
		id:         id,
		deployType: name,
		profile:    p,
		version:    version,
		env: runner.MergeEnv(s.baseEnv(), map[string]string{
			p.EnvVar:  req.APIKey,
			"VERSION": version,
		}),
		masker:  runner.NewMasker(req.APIKey),
		logger:  s.logger.With("deployment_id", id, "deployment_type", name),
		started: time.Now(),
	}, nil
}

func (p plan) command(line string, timeout time.Duration) runner.Command {
	return runner.Command{
		Line:    line,
		Dir:     p.profile.WorkingDir,
		Env:     p.env,
		Timeout: timeout,
		Masker:  p.masker,
	}
}

// childContext returns the context child processes run under.
func (s *Service) childContext(ctx context.Context) context.Context {
	if s.killOnDisconnect {
		return ctx
	}
	return context.WithoutCancel(ctx)
}

// InputMessage maps input validation errors to caller-facing text.
func InputMessage(err error) string {
	switch {
	case errors.Is(err, ErrCredentialRequired):
		return "API key is required"
	case errors.Is(err, ErrNoDeployment):
		return "No deployment configured"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// titleCase mirrors how deployment types are shown in messages: "docker-compose"
// becomes "Docker-Compose".
func titleCase(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if unicode.IsLetter(r) {
			if upper {
				b.WriteRune(unicode.ToUpper(r))
			} else {
				b.WriteRune(unicode.ToLower(r))
			}
			upper = false
			continue
		}
		b.WriteRune(r)
		upper = true
	}
	return b.String()
}
