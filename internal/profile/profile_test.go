package profile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const sampleConfig = `{
  "nim-llm": {
    "command": "helm install nim ./nim-llm-${VERSION}.tgz",
    "env_var": "NGC_API_KEY",
    "pre_commands": ["helm fetch nim-llm --version ${VERSION}"],
    "log_sources": [{"command": "kubectl get pods -n nim", "label": "Pods"}, {"command": "helm status nim"}],
    "namespace": "nim",
    "versions": ["1.0.0", "1.1.0"],
    "default_version": "1.1.0",
    "heading": "Deploy NIM"
  },
  "compose": {
    "command": "docker compose up -d"
  }
}`

func TestResolveFirstProfileByDefault(t *testing.T) {
	path := writeFile(t, "config.json", sampleConfig)
	r := NewFileResolver(path, "", "", nil)

	name, p, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "nim-llm" {
		t.Fatalf("expected first profile nim-llm, got %s", name)
	}
	if p.Namespace != "nim" || p.WorkingDir != "." {
		t.Fatalf("unexpected profile %+v", p)
	}
	if len(p.PreCommands) != 1 || len(p.LogSources) != 2 {
		t.Fatalf("unexpected commands %+v", p)
	}
	if p.LogSources[1].Label != "Status" {
		t.Fatalf("expected default label Status, got %q", p.LogSources[1].Label)
	}
}

func TestResolveSelectsDeployType(t *testing.T) {
	path := writeFile(t, "config.json", sampleConfig)
	r := NewFileResolver(path, "compose", "", nil)
	name, p, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "compose" || p.Command != "docker compose up -d" {
		t.Fatalf("unexpected resolution %s %+v", name, p)
	}
	if p.EnvVar != "NGC_API_KEY" || p.Namespace != "nemo" {
		t.Fatalf("defaults not applied: %+v", p)
	}
}

func TestResolveUnknownDeployType(t *testing.T) {
	path := writeFile(t, "config.json", sampleConfig)
	r := NewFileResolver(path, "missing", "", nil)
	if _, _, err := r.Resolve(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestResolveEmptyDocument(t *testing.T) {
	path := writeFile(t, "config.json", "{}")
	r := NewFileResolver(path, "", "", nil)
	if _, _, err := r.Resolve(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestResolveRejectsProfileWithoutCommand(t *testing.T) {
	path := writeFile(t, "config.json", `{"helm": {"namespace": "apps", "command": "  "}}`)
	r := NewFileResolver(path, "", "", nil)
	if _, _, err := r.Resolve(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if _, err := r.Metadata(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected metadata to fail, got %v", err)
	}
	if err := (Profile{Command: "helm upgrade"}).Validate(); err != nil {
		t.Fatalf("unexpected validation error %v", err)
	}
}

func TestResolveYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
helm:
  command: helm upgrade --install app ./chart
  namespace: apps
  log_sources:
    - command: kubectl get svc -n apps
      label: Services
`)
	r := NewFileResolver(path, "", "", nil)
	name, p, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "helm" || p.Namespace != "apps" || p.LogSources[0].Label != "Services" {
		t.Fatalf("unexpected profile %s %+v", name, p)
	}
}

func TestResolveFallsBackWhenFileMissing(t *testing.T) {
	var fallbackErr error
	r := NewFileResolver(filepath.Join(t.TempDir(), "absent.json"), "", "", func(err error) { fallbackErr = err })
	name, p, err := r.Resolve()
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if name != "docker-compose" || p.Command != "docker-compose up -d" {
		t.Fatalf("unexpected fallback %s %+v", name, p)
	}
	if fallbackErr == nil {
		t.Fatalf("expected fallback callback to receive the read error")
	}
}

func TestResolveReadsFreshOnEveryCall(t *testing.T) {
	path := writeFile(t, "config.json", `{"a": {"command": "echo one"}}`)
	r := NewFileResolver(path, "", "", nil)
	if _, p, _ := r.Resolve(); p.Command != "echo one" {
		t.Fatalf("unexpected command %q", p.Command)
	}
	if err := os.WriteFile(path, []byte(`{"a": {"command": "echo two"}}`), 0o644); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if _, p, _ := r.Resolve(); p.Command != "echo two" {
		t.Fatalf("expected reloaded command, got %q", p.Command)
	}
}

func TestMetadata(t *testing.T) {
	path := writeFile(t, "config.json", sampleConfig)

	meta, err := NewFileResolver(path, "", "", nil).Metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if !meta.ShowVersionSelector || meta.Heading != "Deploy NIM" || meta.DefaultVersion != "1.1.0" {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	meta, err = NewFileResolver(path, "compose", "Override", nil).Metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.ShowVersionSelector || meta.Heading != "Override" || meta.Versions == nil {
		t.Fatalf("unexpected metadata %+v", meta)
	}
}

func TestExpandAndResolveVersion(t *testing.T) {
	p := Profile{DefaultVersion: "2.0"}
	if got := p.ResolveVersion(""); got != "2.0" {
		t.Fatalf("expected default version, got %s", got)
	}
	if got := p.ResolveVersion("2.1"); got != "2.1" {
		t.Fatalf("expected requested version, got %s", got)
	}
	if got := Expand("helm status app-${VERSION}", "2.1"); got != "helm status app-2.1" {
		t.Fatalf("unexpected expansion %q", got)
	}
}

func TestHelpResolver(t *testing.T) {
	path := writeFile(t, "help.json", `{"title":"Custom"}`)
	if got := string(NewHelpResolver(path, nil).Load()); got != `{"title":"Custom"}` {
		t.Fatalf("unexpected help %s", got)
	}
	var fellBack bool
	bad := writeFile(t, "bad.json", `{not json`)
	got := NewHelpResolver(bad, func(error) { fellBack = true }).Load()
	if !fellBack || string(got) != string(defaultHelp) {
		t.Fatalf("expected fallback help, got %s", got)
	}
}
