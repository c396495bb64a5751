//go:build unix

package tools

import (
	"os/exec"
	"syscall"
)

// killProcessGroup makes cancellation kill the whole process group, so
// background children cannot keep the output pipes open
func killProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
