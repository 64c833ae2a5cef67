//go:build !windows

package process

import (
	"syscall"
)

// SendTerminationSignal sends SIGTERM to the whole process group (negative PID)
func SendTerminationSignal(pgid int) error {
	return syscall.Kill(-pgid, syscall.SIGTERM)
}

// SendKillSignal sends SIGKILL to the whole process group
func SendKillSignal(pgid int) error {
	return syscall.Kill(-pgid, syscall.SIGKILL)
}
