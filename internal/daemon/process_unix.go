//go:build !windows

package daemon

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// detach starts the child in its own session
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}

func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

func terminate(pid int) error {
	return unix.Kill(pid, unix.SIGTERM)
}
