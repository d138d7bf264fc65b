//go:build deadlock

// Package sync provides mutex types that can be swapped for deadlock detection.
// In debug mode (build with -tags deadlock), this uses go-deadlock for detection.
package sync

import (
	"os"
	"sync"
	"time"

	"github.com/sasha-s/go-deadlock"
)

// Mutex is a mutual exclusion lock with deadlock detection.
type Mutex = deadlock.Mutex

// RWMutex is a reader/writer mutual exclusion lock with deadlock detection.
type RWMutex = deadlock.RWMutex

// Locker is the standard sync.Locker interface.
type Locker = sync.Locker

// Once is the standard sync.Once.
type Once = sync.Once

// WaitGroup is the standard sync.WaitGroup.
type WaitGroup = sync.WaitGroup

func init() {
	// DeadlockTimeout: how long a lock may be held before a report is written.
	deadlock.Opts.DeadlockTimeout = 30 * time.Second

	if os.Getenv("NOTILINK_NO_DEADLOCK_DETECT") != "" {
		deadlock.Opts.Disable = true
		return
	}

	deadlock.Opts.PrintAllCurrentGoroutines = true

	println("[DEADLOCK DETECTION ENABLED] Using go-deadlock for mutex operations")
}
