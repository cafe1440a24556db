package poller

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/splax/deploystream/internal/runner"
)

var namespacePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// CommandSource lists pods by running kubectl through the process runner.
type CommandSource struct {
	runner  *runner.Runner
	env     []string
	timeout time.Duration
	masker  runner.Masker
}

// NewCommandSource builds a kubectl-backed source. env is the deployment environment,
// so the same kubeconfig and credentials apply as for the deployment itself.
func NewCommandSource(r *runner.Runner, env []string, timeout time.Duration, masker runner.Masker) *CommandSource {
	return &CommandSource{runner: r, env: env, timeout: timeout, masker: masker}
}

// Snapshot runs the pod listing and returns its stdout.
func (s *CommandSource) Snapshot(ctx context.Context, namespace string) (string, error) {
	if !namespacePattern.MatchString(namespace) {
		return "", fmt.Errorf("invalid namespace %q", namespace)
	}
	res, err := s.runner.Run(ctx, runner.Command{
		Line:    fmt.Sprintf("kubectl get pods -n %s --no-headers 2>/dev/null | head -%d", namespace, MaxLines),
		Env:     s.env,
		Timeout: s.timeout,
		Masker:  s.masker,
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}
