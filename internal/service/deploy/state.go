package deploy

import "sync"

// RunState records the main command's result. Only the goroutine running the
// main command writes it; the monitoring loop reads snapshots.
type RunState struct {
	mu       sync.RWMutex
	done     bool
	exitCode int
	output   string
}

// RunSnapshot is a point-in-time copy of a RunState.
type RunSnapshot struct {
	Done     bool
	ExitCode int
	Output   string
}

func (s *RunState) finish(exitCode int, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	s.exitCode = exitCode
	s.output = output
}

// Snapshot returns the current state.
func (s *RunState) Snapshot() RunSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return RunSnapshot{Done: s.done, ExitCode: s.exitCode, Output: s.output}
}
