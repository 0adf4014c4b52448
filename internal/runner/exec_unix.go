//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// setGracefulShutdown interrupts the process before WaitDelay kills it
func setGracefulShutdown(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGINT)
	}
}
