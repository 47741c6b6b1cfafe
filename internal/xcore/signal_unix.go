//go:build !windows

package xcore

import (
	"os"

	"golang.org/x/sys/unix"
)

// terminateGracefully sends SIGTERM; the caller escalates to Kill after
// the grace period.
func terminateGracefully(proc *os.Process) error {
	return proc.Signal(unix.SIGTERM)
}

// processAlive probes the pid with signal 0.
func processAlive(proc *os.Process) bool {
	return proc.Signal(unix.Signal(0)) == nil
}
