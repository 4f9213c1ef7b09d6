//go:build !unix

package monitor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

func setProcessGroup(*exec.Cmd) {}

// signalProcess falls back to killing the process; other signals are not
// deliverable on this platform.
func signalProcess(cmd *exec.Cmd, _ syscall.Signal, _ bool) error {
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}
