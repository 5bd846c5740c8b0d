package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	ready        atomic.Bool
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// SetReady marks whether the collaborator is wired and the process may take traffic.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady reports the ready flag. Health reports starting until it is set.
func IsReady() bool {
	return ready.Load()
}

// MarkReadyAfter sets the ready flag once delay has elapsed. A zero delay marks ready immediately.
// The returned stop func cancels a pending mark.
func MarkReadyAfter(delay time.Duration) (stop func() bool) {
	if delay <= 0 {
		SetReady(true)
		return func() bool { return false }
	}
	t := time.AfterFunc(delay, func() { SetReady(true) })
	return t.Stop
}
