//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// SetProcAttr puts the child in its own process group so a Ctrl-C aimed at
// the bridge does not reach it, and so the whole group can be signalled.
func SetProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// interruptProcessGroup asks the process group to shut down with SIGINT
func interruptProcessGroup(cmd *exec.Cmd) error {
	return signalGroup(cmd, unix.SIGINT)
}

// KillProcessGroup kills a process and its entire process group.
func KillProcessGroup(pid int, cmd *exec.Cmd) error {
	if pid > 0 {
		// ESRCH means the group is already gone
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return err
		}
		return nil
	}
	if cmd != nil && cmd.Process != nil {
		if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}

func signalGroup(cmd *exec.Cmd, sig unix.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	if err := unix.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
