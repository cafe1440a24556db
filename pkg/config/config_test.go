package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerConfigDefaults(t *testing.T) {
	for _, key := range []string{"SERVER_ADDR", "POLL_INTERVAL_SECONDS", "MONITOR_TIMEOUT_SECONDS", "SETTLE_ITERATIONS", "DRY_RUN"} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	cfg := LoadServerConfig()
	if cfg.Addr != ":8080" {
		t.Fatalf("expected default addr :8080, got %q", cfg.Addr)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Fatalf("expected 5s poll interval, got %s", cfg.PollInterval)
	}
	if cfg.MonitorTimeout != 300*time.Second {
		t.Fatalf("expected 300s monitor timeout, got %s", cfg.MonitorTimeout)
	}
	if cfg.SettleIterations != 2 {
		t.Fatalf("expected 2 settle iterations, got %d", cfg.SettleIterations)
	}
	if cfg.DryRun {
		t.Fatalf("dry run should default to false")
	}
}

func TestGetIntFallsBackOnInvalidValue(t *testing.T) {
	t.Setenv("DEPLOYSTREAM_TEST_INT", "not-a-number")
	if got := GetInt("DEPLOYSTREAM_TEST_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	t.Setenv("DEPLOYSTREAM_TEST_INT", " 12 ")
	if got := GetInt("DEPLOYSTREAM_TEST_INT", 7); got != 12 {
		t.Fatalf("expected 12, got %d", got)
	}
}

func TestGetBoolParsesTrue(t *testing.T) {
	t.Setenv("DEPLOYSTREAM_TEST_BOOL", "TRUE")
	if !GetBool("DEPLOYSTREAM_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "config.json")
	if err := os.WriteFile(present, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	missing := filepath.Join(dir, "missing.json")
	if got := FirstExisting(missing, present); got != present {
		t.Fatalf("expected %s, got %s", present, got)
	}
	fallback := filepath.Join(dir, "fallback.json")
	if got := FirstExisting(missing, fallback); got != fallback {
		t.Fatalf("expected last candidate %s, got %s", fallback, got)
	}
}
