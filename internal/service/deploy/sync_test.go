package deploy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDeployCollectsOutput(t *testing.T) {
	p := testProfile(t, "echo deployed")
	p.PreCommands = []string{"echo fetched"}
	emitter := &recordingEmitter{}
	svc := newTestService(p, Options{Telemetry: emitter})

	out, err := svc.Deploy(context.Background(), Request{APIKey: "key"})
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if out.Message != "Helm deployment initiated successfully!" {
		t.Fatalf("unexpected message %q", out.Message)
	}
	if out.Output != "Pre-command output: fetched\n\ndeployed\n" {
		t.Fatalf("unexpected output %q", out.Output)
	}
	if len(emitter.events) != 1 || emitter.events[0].Mode != "sync" {
		t.Fatalf("expected sync callback, got %+v", emitter.events)
	}
}

func TestDeployPreCommandFailure(t *testing.T) {
	p := testProfile(t, "echo deployed")
	p.PreCommands = []string{"echo partial; echo denied >&2; exit 1"}
	svc := newTestService(p, Options{})

	out, err := svc.Deploy(context.Background(), Request{APIKey: "key"})
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected step error, got %v", err)
	}
	if stepErr.Error() != "Pre-command failed: denied" {
		t.Fatalf("unexpected error %q", stepErr.Error())
	}
	if !strings.Contains(stepErr.Output, "partial") || strings.Contains(stepErr.Output, "deployed") {
		t.Fatalf("unexpected output %q", stepErr.Output)
	}
	if out.Status != StatusFailed || out.ExitCode != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestDeployMainFailure(t *testing.T) {
	p := testProfile(t, "echo trying; echo SECRET123 >&2; exit 5")
	svc := newTestService(p, Options{})

	_, err := svc.Deploy(context.Background(), Request{APIKey: "SECRET123"})
	var stepErr *StepError
	if !errors.As(err, &stepErr) {
		t.Fatalf("expected step error, got %v", err)
	}
	if stepErr.Error() != "Deployment failed: ***" {
		t.Fatalf("unexpected error %q", stepErr.Error())
	}
	if stepErr.ExitCode != 5 {
		t.Fatalf("unexpected exit code %d", stepErr.ExitCode)
	}
}

func TestDeployTimeout(t *testing.T) {
	p := testProfile(t, "sleep 5")
	timings := fastTimings()
	timings.SyncTimeout = 100 * time.Millisecond
	svc := newTestService(p, Options{Timings: timings})

	_, err := svc.Deploy(context.Background(), Request{APIKey: "key"})
	if !errors.Is(err, ErrDeployTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestDeployRequiresCredential(t *testing.T) {
	svc := newTestService(testProfile(t, "true"), Options{})
	if _, err := svc.Deploy(context.Background(), Request{}); !errors.Is(err, ErrCredentialRequired) {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestTimeoutMessage(t *testing.T) {
	svc := newTestService(testProfile(t, "true"), Options{Timings: Timings{SyncTimeout: 10 * time.Minute}})
	if got := svc.TimeoutMessage(); got != "Deployment timed out after 10 minutes" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestDryRunMasksSecrets(t *testing.T) {
	p := testProfile(t, "helm install nim ./chart --set key=SECRET123")
	p.PreCommands = []string{
		"helm fetch https://example.com/chart.tgz --username '$oauthtoken' --password SECRET123",
		"docker login --password=hunter2 nvcr.io",
		`echo "password='swordfish'" > creds.yaml`,
	}
	p.DefaultVersion = "1.0.0"
	svc := newTestService(p, Options{})

	report, err := svc.DryRun(Request{APIKey: "SECRET123", Version: "1.1.0"})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !report.DryRun || report.Message != "Dry run complete - no commands were executed" {
		t.Fatalf("unexpected report %+v", report)
	}
	w := report.WouldExecute
	if w.MainCommand != "helm install nim ./chart --set key=***" {
		t.Fatalf("unexpected main command %q", w.MainCommand)
	}
	for _, cmd := range append(w.PreCommands, w.MainCommand) {
		for _, secret := range []string{"SECRET123", "hunter2", "swordfish"} {
			if strings.Contains(cmd, secret) {
				t.Fatalf("secret %q leaked in %q", secret, cmd)
			}
		}
	}
	if w.Environment["NGC_API_KEY"] != "***hidden***" || w.Environment["VERSION"] != "1.1.0" {
		t.Fatalf("unexpected environment %v", w.Environment)
	}
	if w.DeploymentType != "helm" || w.Version != "1.1.0" || w.WorkingDirectory != p.WorkingDir {
		t.Fatalf("unexpected report %+v", w)
	}
}

func TestDryRunRequiresCredential(t *testing.T) {
	svc := newTestService(testProfile(t, "true"), Options{})
	if _, err := svc.DryRun(Request{}); !errors.Is(err, ErrCredentialRequired) {
		t.Fatalf("expected credential error, got %v", err)
	}
}

func TestDeployRejectsProfileWithoutCommand(t *testing.T) {
	p := testProfile(t, "")
	p.PreCommands = []string{"touch pre-ran"}
	svc := newTestService(p, Options{})

	out, err := svc.Deploy(context.Background(), Request{APIKey: "secret-key"})
	if !errors.Is(err, ErrNoDeployment) {
		t.Fatalf("expected no deployment error, got %v", err)
	}
	if out.Status != StatusRejected {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if InputMessage(err) != "No deployment configured" {
		t.Fatalf("unexpected message %q", InputMessage(err))
	}
}

func TestDryRunRejectsProfileWithoutCommand(t *testing.T) {
	svc := newTestService(testProfile(t, ""), Options{})
	report, err := svc.DryRun(Request{APIKey: "secret-key"})
	if !errors.Is(err, ErrNoDeployment) {
		t.Fatalf("expected no deployment error, got %v", err)
	}
	if report.DryRun {
		t.Fatalf("unexpected report %+v", report)
	}
}
