// Package lock provides drop-in replacements for sync mutexes with
// deadlock detection enabled. Detection adds a small overhead on every
// acquisition, so it can be switched off for production builds.
package lock

import (
	"time"

	"github.com/sasha-s/go-deadlock"
)

func init() {
	// report only genuine cross-goroutine deadlocks, a repository can
	// legitimately be locked for the duration of a slow fetch
	deadlock.Opts.DeadlockTimeout = 5 * time.Minute
}

// Mutex is a sync.Mutex with deadlock detection.
type Mutex = deadlock.Mutex

// RWMutex is a sync.RWMutex with deadlock detection.
type RWMutex = deadlock.RWMutex

// Disable turns off deadlock detection globally, keeping the plain
// mutex behaviour.
func Disable() {
	deadlock.Opts.Disable = true
}
