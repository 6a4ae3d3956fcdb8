package ptywrap

import (
	"os/exec"
	"syscall"
)

// ExitCode decodes a finished *exec.Cmd's exit status per §4.E: normal
// exits return the process's exit code, signalled exits return 128+signal.
// A nil err (clean exit) returns 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1
	}
	status, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok {
		return exitErr.ExitCode()
	}
	if status.Signaled() {
		return 128 + int(status.Signal())
	}
	return status.ExitStatus()
}
