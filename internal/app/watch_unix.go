//go:build !windows

package app

import (
	"os"
	"syscall"
)

// shutdownSignals are the OS signals that trigger graceful shutdown.
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}

// terminate asks the daemon to shut down; it flushes and removes its PID file.
func terminate(pid int) error {
	return syscall.Kill(pid, syscall.SIGTERM)
}

// processExists sends signal 0, which checks for the process without
// delivering anything.
func processExists(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
