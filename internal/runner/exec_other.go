//go:build !unix

package runner

import "os/exec"

// setGracefulShutdown keeps the default Kill, windows has no SIGINT for child processes
func setGracefulShutdown(cmd *exec.Cmd) {}
