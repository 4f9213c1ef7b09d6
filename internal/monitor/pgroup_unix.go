//go:build unix

package monitor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// setProcessGroup puts the child in its own process group so that a stop
// signal reaches any helpers it forks.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalProcess delivers sig to the child, or to its whole group. A process
// that has already exited is not an error.
func signalProcess(cmd *exec.Cmd, sig syscall.Signal, group bool) error {
	if cmd.Process == nil {
		return nil
	}
	var err error
	if group {
		err = unix.Kill(-cmd.Process.Pid, sig)
	} else {
		err = cmd.Process.Signal(sig)
	}
	if err == nil || errors.Is(err, unix.ESRCH) || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
