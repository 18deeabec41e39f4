// Package lifecycle tracks whether the process is draining.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var shutdownStarted atomic.Int64

// SetShuttingDown marks the process as draining (true) or serving (false).
// Call on SIGTERM/SIGINT. While draining, /health reports shutting-down with 503
// and dashboards refuse new queries.
func SetShuttingDown(v bool) {
	if v {
		shutdownStarted.CompareAndSwap(0, time.Now().UnixNano())
		return
	}
	shutdownStarted.Store(0)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shutdownStarted.Load() != 0
}

// ShutdownStarted returns when draining began, or the zero time while serving.
func ShutdownStarted() time.Time {
	ns := shutdownStarted.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
