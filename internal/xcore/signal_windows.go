//go:build windows

package xcore

import (
	"os"
	"syscall"
)

// Windows has no SIGTERM delivery for unrelated console processes; go
// straight to Kill and let the caller's grace window be a no-op.
func terminateGracefully(proc *os.Process) error {
	return proc.Kill()
}

func processAlive(proc *os.Process) bool {
	return proc.Signal(syscall.Signal(0)) == nil
}
