//go:build unix

package builtin

import (
	"os/exec"
	"sync/atomic"
	"syscall"
)

// configureProcessGroup starts the shell in its own process group so
// cancellation reaches every process the command spawned. The returned
// func reports whether cancellation already killed the group.
func configureProcessGroup(cmd *exec.Cmd) func() bool {
	var killed atomic.Bool
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		killed.Store(true)
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return killed.Load
}

// killProcessGroup removes background processes left behind by a finished
// command. The leader is already reaped, so an empty group's id may belong
// to another process and is left alone.
func killProcessGroup(pid int, killed bool) {
	if killed || !groupAlive(pid) {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// groupAlive reports whether process group pgid still has members.
func groupAlive(pgid int) bool {
	return syscall.Kill(-pgid, 0) == nil
}
