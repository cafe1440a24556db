package client

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrStreamIncomplete is returned when a deployment stream ends before a
// complete or error event arrives.
var ErrStreamIncomplete = errors.New("deployment stream ended without a final event")

// Client provides typed access to the deployment server for interactive tools.
type Client struct {
	baseURL      string
	token        string
	httpClient   *http.Client
	streamClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithStreamClient overrides the HTTP client used for event streams, which must
// not carry an overall request timeout.
func WithStreamClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.streamClient = h
		}
	}
}

// WithToken sets the operator bearer token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New constructs a Client pointing at the provided server base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:8080"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid server base url: %w", err)
	}
	cli := &Client{
		baseURL:      strings.TrimRight(trimmed, "/"),
		httpClient:   &http.Client{Timeout: 11 * time.Minute},
		streamClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the server.
type APIError struct {
	Status  int
	Message string
	Output  string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return extractError(resp)
	}

	if v == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(resp *http.Response) error {
	apiErr := APIError{Status: resp.StatusCode}
	data, err := io.ReadAll(resp.Body)
	if err != nil || len(data) == 0 {
		return apiErr
	}
	var payload struct {
		Error  string `json:"error"`
		Output string `json:"output"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		apiErr.Message = strings.TrimSpace(string(data))
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(payload.Error)
	apiErr.Output = payload.Output
	return apiErr
}

// DeployRequest is the body accepted by the deploy endpoints.
type DeployRequest struct {
	APIKey  string `json:"apiKey"`
	Version string `json:"version,omitempty"`
	DryRun  bool   `json:"dryRun,omitempty"`
}

// Config describes the active deployment.
type Config struct {
	ActiveDeployment    string   `json:"active_deployment"`
	Versions            []string `json:"versions"`
	DefaultVersion      string   `json:"default_version"`
	Description         string   `json:"description"`
	ShowVersionSelector bool     `json:"show_version_selector"`
	Heading             string   `json:"heading"`
}

// Config returns the active deployment metadata.
func (c *Client) Config(ctx context.Context) (Config, error) {
	var cfg Config
	if err := c.do(ctx, http.MethodGet, "/config", nil, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Help returns the server's help document.
func (c *Client) Help(ctx context.Context) (json.RawMessage, error) {
	var doc json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/help", nil, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// DeployResponse is the result of a synchronous deployment.
type DeployResponse struct {
	Message string `json:"message"`
	Output  string `json:"output"`
}

// Deploy runs a deployment synchronously.
func (c *Client) Deploy(ctx context.Context, req DeployRequest) (DeployResponse, error) {
	req.DryRun = false
	var resp DeployResponse
	if err := c.do(ctx, http.MethodPost, "/deploy", req, &resp); err != nil {
		return DeployResponse{}, err
	}
	return resp, nil
}

// DryRunResponse lists what a deployment would execute.
type DryRunResponse struct {
	DryRun       bool `json:"dry_run"`
	WouldExecute struct {
		DeploymentType   string            `json:"deployment_type"`
		Version          string            `json:"version"`
		WorkingDirectory string            `json:"working_directory"`
		Environment      map[string]string `json:"environment"`
		PreCommands      []string          `json:"pre_commands"`
		MainCommand      string            `json:"main_command"`
	} `json:"would_execute"`
	Message string `json:"message"`
}

// DryRun resolves a deployment without executing it.
func (c *Client) DryRun(ctx context.Context, req DeployRequest) (DryRunResponse, error) {
	req.DryRun = true
	var resp DryRunResponse
	if err := c.do(ctx, http.MethodPost, "/deploy", req, &resp); err != nil {
		return DryRunResponse{}, err
	}
	return resp, nil
}

// Event is one deployment progress event.
type Event struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// Final reports whether the event ends a stream.
func (e Event) Final() bool {
	return e.Type == "complete" || e.Type == "error"
}

// Stream starts a streaming deployment and calls fn for every event in order.
// It returns the last event received. A stream that stops without a complete or
// error event yields ErrStreamIncomplete.
func (c *Client) Stream(ctx context.Context, req DeployRequest, fn func(Event) error) (Event, error) {
	if c == nil {
		return Event{}, fmt.Errorf("client is nil")
	}
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/deploy/stream", req)
	if err != nil {
		return Event{}, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return Event{}, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return Event{}, extractError(resp)
	}

	var last Event
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &evt); err != nil {
			return last, fmt.Errorf("decode event: %w", err)
		}
		last = evt
		if fn != nil {
			if err := fn(evt); err != nil {
				return last, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return last, fmt.Errorf("read stream: %w", err)
	}
	if !last.Final() {
		return last, ErrStreamIncomplete
	}
	return last, nil
}
