package syncutil

import (
	"sync"
	"time"
)

// TryMutex is a drop-in replacement for sync.Mutex that additionally
// supports non-blocking and timed lock attempts. The zero value is a valid,
// unlocked TryMutex.
type TryMutex struct {
	once sync.Once
	ch   chan struct{}
}

func (tm *TryMutex) init() {
	tm.once.Do(func() {
		tm.ch = make(chan struct{}, 1)
	})
}

// Lock blocks until the mutex is acquired.
func (tm *TryMutex) Lock() {
	tm.init()
	tm.ch <- struct{}{}
}

// Unlock releases the mutex. Unlocking an already-unlocked TryMutex panics,
// the same as sync.Mutex.
func (tm *TryMutex) Unlock() {
	tm.init()
	select {
	case <-tm.ch:
	default:
		panic("syncutil: unlock of unlocked TryMutex")
	}
}

// TryLock attempts to acquire the mutex without blocking, returning whether
// it succeeded.
func (tm *TryMutex) TryLock() bool {
	tm.init()
	select {
	case tm.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

// TryLockTimed attempts to acquire the mutex, giving up after timeout.
func (tm *TryMutex) TryLockTimed(timeout time.Duration) bool {
	tm.init()
	select {
	case tm.ch <- struct{}{}:
		return true
	case <-time.After(timeout):
		return false
	}
}
