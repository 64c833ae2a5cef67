//go:build !windows

package processstate

import (
	"fmt"
	"os"
	"syscall"
)

// IsProcessRunning reports whether pid exists. A process that exists but
// belongs to another user (EPERM) counts as running.
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	// On Unix, FindProcess always succeeds; signal 0 is the real probe.
	process, err := os.FindProcess(pid)
	if err != nil {
		return false, err
	}

	err = process.Signal(syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	if err == os.ErrProcessDone {
		return false, nil
	}
	return interpretProbe(err)
}

// IsGroupRunning reports whether any member of process group pgid exists.
func IsGroupRunning(pgid int) (bool, error) {
	if pgid <= 0 {
		return false, fmt.Errorf("invalid process group: %d", pgid)
	}
	err := syscall.Kill(-pgid, syscall.Signal(0))
	if err == nil {
		return true, nil
	}
	return interpretProbe(err)
}

func interpretProbe(err error) (bool, error) {
	errno, ok := err.(syscall.Errno)
	if !ok {
		return false, err
	}
	switch errno {
	case syscall.ESRCH:
		return false, nil
	case syscall.EPERM:
		return true, nil
	}
	return false, err
}
