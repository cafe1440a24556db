package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout   = 5 * time.Second
	maxErrorBodySize = 4096
)

// ErrUnauthorized indicates the callback rejected the configured token.
var ErrUnauthorized = errors.New("deployment callback unauthorized")

// ErrInvalidArgument indicates the callback rejected the payload.
var ErrInvalidArgument = errors.New("deployment callback invalid argument")

// ErrNotFound indicates the callback endpoint does not exist.
var ErrNotFound = errors.New("deployment callback not found")

// Emitter posts deployment outcomes to a callback URL.
type Emitter struct {
	url    string
	token  string
	client *http.Client
	now    func() time.Time
}

// Event is a finished deployment as reported to the callback.
type Event struct {
	DeploymentID   string
	DeploymentType string
	Version        string
	Mode           string
	Status         string
	ExitCode       *int
	Message        string
	DurationMS     int64
	OccurredAt     time.Time
}

// NewEmitter creates an emitter for the callback URL. The token, when set, is sent
// as a bearer credential.
func NewEmitter(callbackURL, token string, client *http.Client) (*Emitter, error) {
	trimmed := strings.TrimSpace(callbackURL)
	if trimmed == "" {
		return nil, errors.New("deployment callback url required")
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	} else if client.Timeout == 0 {
		client.Timeout = defaultTimeout
	}
	return &Emitter{
		url:    trimmed,
		token:  strings.TrimSpace(token),
		client: client,
		now:    time.Now,
	}, nil
}

// Emit sends the event to the callback.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if e == nil {
		return errors.New("deployment callback emitter not initialised")
	}
	deploymentID := strings.TrimSpace(event.DeploymentID)
	if deploymentID == "" {
		return errors.New("deployment callback requires deployment_id")
	}
	body, err := json.Marshal(buildPayload(deploymentID, event, e.now))
	if err != nil {
		return fmt.Errorf("marshal deployment event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.token != "" {
		req.Header.Set("Authorization", "Bearer "+e.token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send callback request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return e.errorForStatus(resp)
	}
	return nil
}

func (e *Emitter) errorForStatus(resp *http.Response) error {
	limited := io.LimitReader(resp.Body, maxErrorBodySize)
	buf, _ := io.ReadAll(limited)
	summary := strings.TrimSpace(string(buf))
	if summary == "" {
		summary = resp.Status
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, summary)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, summary)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, summary)
	default:
		return fmt.Errorf("callback request failed: %s", summary)
	}
}

func buildPayload(deploymentID string, event Event, nowFn func() time.Time) map[string]any {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = nowFn().UTC()
	} else {
		occurred = occurred.UTC()
	}
	mode := strings.TrimSpace(event.Mode)
	if mode == "" {
		mode = "stream"
	}
	level := "info"
	if event.Status != "success" {
		level = "error"
	}
	return map[string]any{
		"deployment_id":   deploymentID,
		"deployment_type": strings.TrimSpace(event.DeploymentType),
		"version":         strings.TrimSpace(event.Version),
		"mode":            mode,
		"status":          strings.TrimSpace(event.Status),
		"level":           level,
		"exit_code":       event.ExitCode,
		"message":         strings.TrimSpace(event.Message),
		"duration_ms":     event.DurationMS,
		"occurred_at":     occurred.Format(time.RFC3339Nano),
	}
}
