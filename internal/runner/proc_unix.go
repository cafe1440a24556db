//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// killProcessGroup starts the shell in its own process group and kills the whole group
// on cancellation so pipelines and background children do not outlive the command.
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
