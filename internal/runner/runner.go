package runner

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its timeout and has been killed.
var ErrTimeout = errors.New("command timed out")

const (
	defaultShell = "/bin/sh"
	waitDelay    = 2 * time.Second
)

// Command describes a shell command line and how to run it.
type Command struct {
	Line    string
	Dir     string
	Env     []string
	Timeout time.Duration
	// Masker hides secrets from the logged command line.
	Masker Masker
}

// Result is the outcome of a finished command. In streaming mode Stdout holds the
// merged stdout/stderr text and Stderr is empty.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Success reports whether the command exited with status 0.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Runner executes shell commands on behalf of a deployment.
type Runner struct {
	logger *slog.Logger
	shell  string
}

// New creates a Runner that logs each invocation to logger.
func New(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{logger: logger, shell: defaultShell}
}

// Run executes the command and captures stdout and stderr separately. A nonzero exit
// status is reported through Result.ExitCode, not as an error.
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := r.command(ctx, c)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	return finish(ctx, c, res, err)
}

// Stream executes the command with stderr folded into stdout and calls emit for every
// line as soon as it is read. The returned result holds the full merged output.
func (r *Runner) Stream(ctx context.Context, c Command, emit func(string)) (Result, error) {
	ctx, cancel := withTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := r.command(ctx, c)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("stdout pipe: %w", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start command: %w", err)
	}

	var output strings.Builder
	reader := bufio.NewReader(stdout)
	for {
		line, readErr := reader.ReadString('\n')
		if line != "" {
			output.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				output.WriteByte('\n')
			}
			if emit != nil {
				emit(strings.TrimRight(line, "\r\n"))
			}
		}
		if readErr != nil {
			break
		}
	}

	err = cmd.Wait()
	return finish(ctx, c, Result{Stdout: output.String()}, err)
}

func (r *Runner) command(ctx context.Context, c Command) *exec.Cmd {
	r.logger.Info("executing command", "command", c.Masker.Mask(c.Line), "dir", c.Dir)
	cmd := exec.CommandContext(ctx, r.shell, "-c", c.Line)
	cmd.Dir = c.Dir
	if c.Env != nil {
		cmd.Env = c.Env
	}
	cmd.WaitDelay = waitDelay
	killProcessGroup(cmd)
	return cmd
}

func finish(ctx context.Context, c Command, res Result, err error) (Result, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) && c.Timeout > 0 {
			return res, fmt.Errorf("%w after %s", ErrTimeout, c.Timeout)
		}
		return res, ctxErr
	}
	if err == nil {
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		return res, nil
	}
	res.ExitCode = -1
	return res, fmt.Errorf("run command: %w", err)
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

// MergeEnv returns base with every key in overrides set, replacing existing entries.
func MergeEnv(base []string, overrides map[string]string) []string {
	out := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, ok := overrides[key]; ok {
			continue
		}
		out = append(out, kv)
	}
	for key, value := range overrides {
		out = append(out, key+"="+value)
	}
	return out
}
