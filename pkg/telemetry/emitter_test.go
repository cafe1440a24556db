package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEmitSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/hooks/deployments" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Fatalf("unexpected authorization header %s", auth)
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["deployment_id"] != "dep-123" {
			t.Fatalf("unexpected deployment_id %v", payload["deployment_id"])
		}
		if payload["mode"] != "stream" {
			t.Fatalf("expected default mode stream, got %v", payload["mode"])
		}
		if payload["level"] != "info" {
			t.Fatalf("expected level info for success, got %v", payload["level"])
		}
		if payload["exit_code"] != float64(0) {
			t.Fatalf("unexpected exit_code %v", payload["exit_code"])
		}
		if payload["occurred_at"] == "" {
			t.Fatalf("expected occurred_at to be populated")
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL+"/hooks/deployments", " secret ", nil)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	code := 0
	event := Event{DeploymentID: "dep-123", Status: "success", ExitCode: &code, Message: "done"}
	if err := emitter.Emit(context.Background(), event); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func TestEmitFailureLevel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload["level"] != "error" {
			t.Fatalf("expected level error, got %v", payload["level"])
		}
		if _, ok := r.Header["Authorization"]; ok {
			t.Fatalf("expected no authorization header without token")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL, "", nil)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	if err := emitter.Emit(context.Background(), Event{DeploymentID: "dep", Status: "failed"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
}

func TestEmitUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	emitter, err := NewEmitter(srv.URL, "", &http.Client{Timeout: time.Second})
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	err = emitter.Emit(context.Background(), Event{DeploymentID: "dep"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
}

func TestEmitRequiresDeploymentID(t *testing.T) {
	emitter, err := NewEmitter("https://hooks.example.com/deployments", "", nil)
	if err != nil {
		t.Fatalf("new emitter: %v", err)
	}
	if err := emitter.Emit(context.Background(), Event{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestNewEmitterRequiresURL(t *testing.T) {
	if _, err := NewEmitter("  ", "", nil); err == nil {
		t.Fatal("expected error for empty url")
	}
}
