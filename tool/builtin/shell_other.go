//go:build !unix

package builtin

import "os/exec"

func configureProcessGroup(cmd *exec.Cmd) func() bool {
	return func() bool { return false }
}

func killProcessGroup(pid int, killed bool) {}
