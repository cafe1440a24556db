package deploy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/splax/deploystream/internal/events"
	"github.com/splax/deploystream/internal/poller"
	"github.com/splax/deploystream/internal/profile"
	"github.com/splax/deploystream/internal/runner"
	"github.com/splax/deploystream/internal/stream"
)

const (
	failureTailLines      = 20
	monitorTimeoutMessage = "Monitoring timeout reached, deployment may still be in progress"
)

// relay moves events from the queue to the sink. It is used only by the goroutine
// serving the request, so sink writes never interleave.
type relay struct {
	sink  stream.Sink
	queue *events.Queue
	err   error
}

func (r *relay) send(e events.Event) error {
	if r.err != nil {
		return r.err
	}
	if err := r.sink.Send(e); err != nil {
		r.err = err
	}
	return r.err
}

func (r *relay) flush() error {
	for _, e := range r.queue.Drain() {
		if err := r.send(e); err != nil {
			return err
		}
	}
	return r.err
}

func (r *relay) heartbeat() error {
	if r.err != nil {
		return r.err
	}
	if err := r.sink.Heartbeat(); err != nil {
		r.err = err
	}
	return r.err
}

// idle waits for d while forwarding any events that arrive in the meantime.
func (r *relay) idle(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
			return r.flush()
		case <-r.queue.Ready():
			if err := r.flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stream runs the deployment and writes its progress to sink. Input errors are
// reported as a single error event. The returned outcome is also published to the
// telemetry callback when one is configured.
func (s *Service) Stream(ctx context.Context, req Request, sink stream.Sink) Outcome {
	p, err := s.prepare(req)
	if err != nil {
		msg := InputMessage(err)
		s.logger.Info("deployment rejected", "request", req, "error", err)
		_ = sink.Send(events.Error(msg))
		return Outcome{Mode: ModeStream, Status: StatusRejected, ExitCode: -1, Message: msg}
	}

	rl := &relay{sink: sink, queue: events.NewQueue()}
	out := s.stream(ctx, p, rl)
	out.Duration = time.Since(p.started)
	p.logger.Info("deployment finished",
		"mode", out.Mode,
		"status", out.Status,
		"exit_code", out.ExitCode,
		"duration", out.Duration,
	)
	s.notify(ctx, p, out)
	return out
}

func (s *Service) stream(ctx context.Context, p plan, rl *relay) Outcome {
	out := p.outcome(ModeStream)
	childCtx := s.childContext(ctx)
	emitOutput := func(line string) {
		rl.queue.Push(events.Output(p.masker.MaskOutput(line)))
	}

	p.logger.Info("deployment started", "version", p.version, "pre_commands", len(p.profile.PreCommands))
	if rl.send(events.Start(fmt.Sprintf("Starting %s deployment...", p.deployType))) != nil {
		return disconnected(out, rl.err)
	}

	total := len(p.profile.PreCommands)
	for i, line := range p.profile.PreCommands {
		rl.send(events.Section(fmt.Sprintf("Pre-command %d/%d", i+1, total)))
		rl.send(events.Command(p.masker.MaskOutput(line)))
		if rl.err != nil {
			return disconnected(out, rl.err)
		}

		var res runner.Result
		var runErr error
		err := s.await(ctx, rl, func() {
			res, runErr = s.runner.Stream(childCtx, p.command(line, s.timings.PreCommandTimeout), emitOutput)
		})
		if err != nil {
			return disconnected(out, err)
		}
		if runErr != nil {
			p.logger.Error("pre-command error", "index", i+1, "error", runErr)
			rl.send(events.Error(fmt.Sprintf("Error: %v", runErr)))
			return failed(out, -1, runErr.Error())
		}
		if !res.Success() {
			msg := fmt.Sprintf("Pre-command failed with exit code %d", res.ExitCode)
			p.logger.Warn("pre-command failed", "index", i+1, "exit_code", res.ExitCode)
			rl.send(events.Error(msg))
			rl.send(events.Error(capturedOutput(p.masker.MaskOutput(res.Stdout))))
			return failed(out, res.ExitCode, msg)
		}
	}

	rl.send(events.Section("Main Deployment"))
	rl.send(events.Command(p.masker.MaskOutput(p.profile.Command)))
	if rl.err != nil {
		return disconnected(out, rl.err)
	}

	state := &RunState{}
	done := make(chan struct{})
	go func() {
		defer close(done)
		res, err := s.runner.Stream(childCtx, p.command(p.profile.Command, 0), emitOutput)
		if err != nil {
			p.logger.Error("main command error", "error", err)
			rl.queue.Push(events.Error(p.masker.MaskOutput(fmt.Sprintf("Command error: %v", err))))
			state.finish(1, err.Error())
			return
		}
		state.finish(res.ExitCode, res.Stdout)
	}()

	if err := s.monitor(ctx, p, rl, state); err != nil {
		return disconnected(out, err)
	}

	timer := time.NewTimer(s.timings.JoinTimeout)
	select {
	case <-done:
	case <-timer.C:
		p.logger.Warn("main command still running after join timeout", "join_timeout", s.timings.JoinTimeout)
	case <-ctx.Done():
		timer.Stop()
		return disconnected(out, ctx.Err())
	}
	timer.Stop()
	if err := rl.flush(); err != nil {
		return disconnected(out, err)
	}

	snap := state.Snapshot()
	code := snap.ExitCode
	if !snap.Done {
		code = -1
	}
	if code != 0 {
		msg := fmt.Sprintf("Deployment failed with exit code %d", code)
		rl.send(events.Error(msg))
		for _, line := range tailLines(p.masker.MaskOutput(snap.Output), failureTailLines) {
			rl.send(events.Error(line))
		}
		if rl.err != nil {
			return disconnected(out, rl.err)
		}
		return failed(out, code, msg)
	}

	msg := fmt.Sprintf("%s command completed successfully!", titleCase(p.deployType))
	rl.send(events.Success(msg))
	rl.send(events.Section("Final Status"))
	for _, src := range p.profile.LogSources {
		if rl.err != nil {
			break
		}
		s.reportLogSource(childCtx, p, rl, src)
	}
	rl.send(events.Complete())
	if rl.err != nil {
		return disconnected(out, rl.err)
	}
	out.Status = StatusSuccess
	out.Message = msg
	return out
}

// monitor relays output and pod status until the main command has been observed
// finished on enough consecutive iterations, or the soft deadline passes.
func (s *Service) monitor(ctx context.Context, p plan, rl *relay, state *RunState) error {
	pl := poller.New(s.statusSource(p.env, p.masker), p.profile.Namespace, p.logger)
	deadline := time.Now().Add(s.timings.MonitorTimeout)
	settled := 0
	for {
		if err := rl.heartbeat(); err != nil {
			return err
		}
		if err := rl.flush(); err != nil {
			return err
		}
		if state.Snapshot().Done {
			settled++
			if settled >= s.timings.SettleIterations {
				return nil
			}
		}
		for _, e := range pl.Poll(ctx) {
			rl.queue.Push(e)
		}
		if err := rl.flush(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			p.logger.Warn("monitoring deadline reached", "monitor_timeout", s.timings.MonitorTimeout)
			return rl.send(events.Info(monitorTimeoutMessage))
		}
		if err := rl.idle(ctx, s.timings.PollInterval); err != nil {
			return err
		}
	}
}

// await runs fn on its own goroutine and relays its events until it returns.
func (s *Service) await(ctx context.Context, rl *relay, fn func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	ticker := time.NewTicker(s.timings.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return rl.flush()
		case <-rl.queue.Ready():
			if err := rl.flush(); err != nil {
				return err
			}
		case <-ticker.C:
			if err := rl.heartbeat(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Service) reportLogSource(ctx context.Context, p plan, rl *relay, src profile.LogSource) {
	rl.send(events.Info(fmt.Sprintf("--- %s ---", src.Label)))
	line := profile.Expand(src.Command, p.version)
	res, err := s.runner.Run(ctx, p.command(line, s.timings.LogSourceTimeout))
	if err != nil {
		p.logger.Warn("log source failed", "label", src.Label, "error", err)
		rl.send(events.Error(fmt.Sprintf("Failed to get %s: %v", src.Label, err)))
		return
	}
	for _, l := range nonBlankLines(p.masker.MaskOutput(res.Stdout)) {
		rl.send(events.Log(l))
	}
	if !res.Success() {
		p.logger.Warn("log source exited nonzero", "label", src.Label, "exit_code", res.ExitCode)
		rl.send(events.Error(fmt.Sprintf("Failed to get %s: exit code %d", src.Label, res.ExitCode)))
	}
}

func disconnected(out Outcome, err error) Outcome {
	out.Status = StatusDisconnected
	out.ExitCode = -1
	if err != nil {
		out.Message = err.Error()
	}
	return out
}

func failed(out Outcome, code int, msg string) Outcome {
	out.Status = StatusFailed
	out.ExitCode = code
	out.Message = msg
	return out
}

func capturedOutput(output string) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "No output captured"
	}
	return trimmed
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// tailLines returns at most limit trailing non-blank lines of text.
func tailLines(text string, limit int) []string {
	lines := nonBlankLines(text)
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines
}
