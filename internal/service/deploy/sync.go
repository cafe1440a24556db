package deploy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/splax/deploystream/internal/runner"
)

// ErrDeployTimeout is returned when a synchronous deployment step exceeds its timeout.
var ErrDeployTimeout = errors.New("deployment timed out")

const hiddenValue = "***hidden***"

// Deploy runs the pre-commands and the main command to completion and returns
// their collected output.
func (s *Service) Deploy(ctx context.Context, req Request) (Outcome, error) {
	p, err := s.prepare(req)
	if err != nil {
		s.logger.Info("deployment rejected", "request", req, "error", err)
		return Outcome{Mode: ModeSync, Status: StatusRejected, ExitCode: -1, Message: InputMessage(err)}, err
	}
	out, err := s.deploy(s.childContext(ctx), p)
	out.Duration = time.Since(p.started)
	p.logger.Info("deployment finished",
		"mode", out.Mode,
		"status", out.Status,
		"exit_code", out.ExitCode,
		"duration", out.Duration,
	)
	s.notify(ctx, p, out)
	return out, err
}

func (s *Service) deploy(ctx context.Context, p plan) (Outcome, error) {
	out := p.outcome(ModeSync)
	p.logger.Info("deployment started", "version", p.version, "pre_commands", len(p.profile.PreCommands))

	var outputs []string
	for i, line := range p.profile.PreCommands {
		res, err := s.runner.Run(ctx, p.command(line, s.timings.SyncTimeout))
		if err != nil {
			return failed(out, -1, err.Error()), syncError(err)
		}
		outputs = append(outputs, "Pre-command output: "+p.masker.MaskOutput(res.Stdout))
		if !res.Success() {
			p.logger.Warn("pre-command failed", "index", i+1, "exit_code", res.ExitCode)
			stepErr := &StepError{
				Stage:    "Pre-command",
				ExitCode: res.ExitCode,
				Stderr:   p.masker.MaskOutput(res.Stderr),
				Output:   strings.Join(outputs, "\n"),
			}
			out.Output = stepErr.Output
			return failed(out, res.ExitCode, stepErr.Error()), stepErr
		}
	}

	res, err := s.runner.Run(ctx, p.command(p.profile.Command, s.timings.SyncTimeout))
	if err != nil {
		return failed(out, -1, err.Error()), syncError(err)
	}
	outputs = append(outputs, p.masker.MaskOutput(res.Stdout))
	if !res.Success() {
		p.logger.Warn("deployment command failed", "exit_code", res.ExitCode)
		stepErr := &StepError{
			Stage:    "Deployment",
			ExitCode: res.ExitCode,
			Stderr:   p.masker.MaskOutput(res.Stderr),
			Output:   strings.Join(outputs, "\n"),
		}
		out.Output = stepErr.Output
		return failed(out, res.ExitCode, stepErr.Error()), stepErr
	}

	out.Status = StatusSuccess
	out.Message = fmt.Sprintf("%s deployment initiated successfully!", titleCase(p.deployType))
	out.Output = strings.Join(outputs, "\n")
	return out, nil
}

// TimeoutMessage describes ErrDeployTimeout for callers.
func (s *Service) TimeoutMessage() string {
	minutes := int(s.timings.SyncTimeout / time.Minute)
	if minutes > 0 && s.timings.SyncTimeout%time.Minute == 0 {
		return fmt.Sprintf("Deployment timed out after %d minutes", minutes)
	}
	return fmt.Sprintf("Deployment timed out after %s", s.timings.SyncTimeout)
}

func syncError(err error) error {
	if errors.Is(err, runner.ErrTimeout) {
		return fmt.Errorf("%w: %w", ErrDeployTimeout, err)
	}
	return err
}

// DryRunReport describes what a deployment would execute.
type DryRunReport struct {
	DryRun       bool         `json:"dry_run"`
	WouldExecute WouldExecute `json:"would_execute"`
	Message      string       `json:"message"`
}

// WouldExecute lists the resolved deployment with secrets masked.
type WouldExecute struct {
	DeploymentType   string            `json:"deployment_type"`
	Version          string            `json:"version"`
	WorkingDirectory string            `json:"working_directory"`
	Environment      map[string]string `json:"environment"`
	PreCommands      []string          `json:"pre_commands"`
	MainCommand      string            `json:"main_command"`
}

// DryRun resolves the deployment without executing anything.
func (s *Service) DryRun(req Request) (DryRunReport, error) {
	p, err := s.prepare(req)
	if err != nil {
		return DryRunReport{}, err
	}
	pre := make([]string, 0, len(p.profile.PreCommands))
	for _, line := range p.profile.PreCommands {
		pre = append(pre, p.masker.MaskCommand(line))
	}
	p.logger.Info("dry run", "version", p.version)
	return DryRunReport{
		DryRun: true,
		WouldExecute: WouldExecute{
			DeploymentType:   p.deployType,
			Version:          p.version,
			WorkingDirectory: p.profile.WorkingDir,
			Environment: map[string]string{
				p.profile.EnvVar: hiddenValue,
				"VERSION":        p.version,
			},
			PreCommands: pre,
			MainCommand: p.masker.MaskCommand(p.profile.Command),
		},
		Message: "Dry run complete - no commands were executed",
	}, nil
}
