package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/splax/deploystream/internal/events"
	"github.com/splax/deploystream/internal/profile"
	"github.com/splax/deploystream/internal/service/deploy"
	"github.com/splax/deploystream/internal/stream"
)

// DeployService runs deployments for the HTTP handlers.
type DeployService interface {
	Stream(ctx context.Context, req deploy.Request, sink stream.Sink) deploy.Outcome
	Deploy(ctx context.Context, req deploy.Request) (deploy.Outcome, error)
	DryRun(req deploy.Request) (deploy.DryRunReport, error)
	Health(ctx context.Context) error
	TimeoutMessage() string
}

// ConfigSource describes the active deployment.
type ConfigSource interface {
	Metadata() (profile.Metadata, error)
}

// HelpSource provides the help document.
type HelpSource interface {
	Load() json.RawMessage
}

// Options configures the router.
type Options struct {
	StaticDir string
	// DryRun forces every /deploy request into dry-run mode.
	DryRun bool
	// RateLimitPerMinute bounds deploy requests per caller; zero disables limiting.
	RateLimitPerMinute int
	Limiter            RateLimiter
	// AuthSecret enables operator token checks on deploy routes when set.
	AuthSecret string
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	deploy     DeployService
	config     ConfigSource
	help       HelpSource
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	rateLimit  int
	authSecret string
	staticDir  string
	dryRun     bool

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	deployResults      *prometheus.CounterVec
	rateLimitHits      *prometheus.CounterVec
	activeStreams      prometheus.Gauge
}

const (
	rateWindowDefault  = time.Minute
	healthCheckTimeout = 2 * time.Second
	maxRequestBytes    = 64 << 10
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, deploySvc DeployService, config ConfigSource, help HelpSource, opts Options) *Router {
	r := &Router{
		mux:    http.NewServeMux(),
		logger: logger,
		deploy: deploySvc,
		config: config,
		help:   help,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:    opts.Limiter,
		rateLimit:  opts.RateLimitPerMinute,
		authSecret: strings.TrimSpace(opts.AuthSecret),
		staticDir:  opts.StaticDir,
		dryRun:     opts.DryRun,
	}
	if r.staticDir == "" {
		r.staticDir = "."
	}
	if r.limiter == nil && r.rateLimit > 0 {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/healthz", r.audit(r.instrument("/healthz", r.handleHealthz)))
	r.mux.HandleFunc("/config", r.audit(r.instrument("/config", r.handleConfig)))
	r.mux.HandleFunc("/help", r.audit(r.instrument("/help", r.handleHelp)))
	r.mux.HandleFunc("/deploy", r.audit(r.instrument("/deploy", r.guarded("/deploy", r.handleDeploy))))
	r.mux.HandleFunc("/deploy/stream", r.audit(r.instrument("/deploy/stream", r.guarded("/deploy/stream", r.handleDeployStream))))
	r.mux.HandleFunc("/deploy/ws", r.audit(r.instrument("/deploy/ws", r.guarded("/deploy/ws", r.handleDeployWS))))
	r.mux.Handle("/assets/", http.StripPrefix("/assets/", http.FileServer(http.Dir(filepath.Join(r.staticDir, "assets")))))
	r.mux.HandleFunc("/", r.audit(r.handleIndex))
}

// guarded applies operator auth and rate limiting to deploy routes.
func (r *Router) guarded(route string, next http.HandlerFunc) http.HandlerFunc {
	return r.requireAuth(r.withRateLimit(route, next))
}

func (r *Router) handleIndex(w http.ResponseWriter, req *http.Request) {
	if req.URL.Path != "/" {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		r.methodNotAllowed(w)
		return
	}
	http.ServeFile(w, req, filepath.Join(r.staticDir, "index.html"))
}

func (r *Router) handleConfig(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	meta, err := r.config.Metadata()
	if err != nil {
		r.logger.Error("config lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, deploy.InputMessage(deploy.ErrNoDeployment))
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (r *Router) handleHelp(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, r.help.Load())
}

func (r *Router) handleDeploy(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	payload, ok := decodeRequest(w, req)
	if !ok {
		return
	}
	if payload.DryRun || r.dryRun {
		report, err := r.deploy.DryRun(payload)
		if err != nil {
			writeDeployError(w, err, r.deploy.TimeoutMessage())
			return
		}
		r.recordDeployResult(string(deploy.ModeDryRun), string(deploy.StatusSuccess))
		writeJSON(w, http.StatusOK, report)
		return
	}
	out, err := r.deploy.Deploy(req.Context(), payload)
	r.recordDeployResult(string(deploy.ModeSync), string(out.Status))
	if err != nil {
		writeDeployError(w, err, r.deploy.TimeoutMessage())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": out.Message,
		"output":  out.Output,
	})
}

func (r *Router) handleDeployStream(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	payload, ok := decodeRequest(w, req)
	if !ok {
		return
	}
	sse, err := stream.NewSSEWriter(w, r.logger)
	if err != nil {
		r.logger.Error("sse unavailable", "error", err)
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	defer sse.Close()
	defer r.streamOpened()()
	out := r.deploy.Stream(req.Context(), payload, sse)
	r.recordDeployResult(string(deploy.ModeStream), string(out.Status))
}

// handleDeployWS streams a deployment over a websocket. The first client message
// carries the deployment request; closing the socket ends observation.
func (r *Router) handleDeployWS(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	writer := stream.NewWSWriter(conn, r.logger)
	defer writer.Close()

	conn.SetReadLimit(maxRequestBytes)
	var payload deploy.Request
	if err := conn.ReadJSON(&payload); err != nil {
		r.logger.Warn("websocket request invalid", "error", err)
		_ = writer.Send(events.Error("invalid JSON body"))
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer r.streamOpened()()
	out := r.deploy.Stream(ctx, payload, writer)
	r.recordDeployResult(string(deploy.ModeStream), string(out.Status))
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()
	component := map[string]any{"status": "up"}
	status := "ok"
	if err := r.deploy.Health(ctx); err != nil {
		status = "degraded"
		component = map[string]any{
			"status": "down",
			"error":  err.Error(),
		}
	}
	payload := map[string]any{
		"status": status,
		"components": map[string]any{
			"config": component,
		},
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

func decodeRequest(w http.ResponseWriter, req *http.Request) (deploy.Request, bool) {
	var payload deploy.Request
	body := io.LimitReader(req.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return deploy.Request{}, false
	}
	return payload, true
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
