// Package syncutil provides concurrency primitives used throughout the node:
// a ThreadGroup for cooperative goroutine shutdown, a counting Limiter for
// bounding concurrent work, and try-lock variants of sync.Mutex/RWMutex.
package syncutil

import (
	"errors"
	"sync"
)

// ErrStopped is returned by ThreadGroup methods that cannot proceed because
// Stop has already been called.
var ErrStopped = errors.New("syncutil: thread group already stopped")

// ThreadGroup is a one-shot substitute for sync.WaitGroup: in addition to
// waiting for a set of goroutines to finish, it provides a channel that is
// closed when Stop is called, so that long-running goroutines can be told to
// exit early instead of being waited on indefinitely. The zero value is a
// valid, unstopped ThreadGroup.
type ThreadGroup struct {
	onStopFns    []func()
	afterStopFns []func()

	bmu      sync.Mutex // protects onStopFns/afterStopFns appends-after-stop
	mu       sync.Mutex
	once     sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func (tg *ThreadGroup) init() {
	tg.once.Do(func() {
		tg.stopChan = make(chan struct{})
	})
}

// StopChan returns a channel that is closed when Stop is called.
func (tg *ThreadGroup) StopChan() <-chan struct{} {
	tg.init()
	return tg.stopChan
}

func (tg *ThreadGroup) isStopped() bool {
	tg.init()
	select {
	case <-tg.stopChan:
		return true
	default:
		return false
	}
}

// Add increments the thread group's counter. It returns ErrStopped if Stop
// has already been called, in which case the caller must not start its
// goroutine.
func (tg *ThreadGroup) Add() error {
	tg.mu.Lock()
	defer tg.mu.Unlock()
	tg.init()
	if tg.isStopped() {
		return ErrStopped
	}
	tg.wg.Add(1)
	return nil
}

// Done decrements the thread group's counter.
func (tg *ThreadGroup) Done() {
	tg.wg.Done()
}

// OnStop queues fn to run when Stop is called, before Stop waits for
// outstanding Add calls to finish with Done. If the group has already been
// stopped, fn is called immediately. Functions are called in LIFO order.
func (tg *ThreadGroup) OnStop(fn func()) {
	tg.bmu.Lock()
	defer tg.bmu.Unlock()
	tg.init()
	if tg.isStopped() {
		fn()
		return
	}
	tg.onStopFns = append(tg.onStopFns, fn)
}

// AfterStop queues fn to run after Stop has waited for all outstanding Add
// calls to finish. If the group has already been stopped, fn is called
// immediately. Functions are called in LIFO order.
func (tg *ThreadGroup) AfterStop(fn func()) {
	tg.bmu.Lock()
	defer tg.bmu.Unlock()
	tg.init()
	if tg.isStopped() {
		fn()
		return
	}
	tg.afterStopFns = append(tg.afterStopFns, fn)
}

// Flush waits for all outstanding Add calls to complete, without calling the
// OnStop functions, closing the stop channel or running the AfterStop
// functions. It does not prevent further calls to Add.
func (tg *ThreadGroup) Flush() {
	tg.wg.Wait()
}

// Stop closes the stop channel, runs all queued OnStop functions (LIFO),
// waits for every outstanding Add call to finish, and then runs all queued
// AfterStop functions (LIFO). It returns ErrStopped if called more than once.
func (tg *ThreadGroup) Stop() error {
	tg.mu.Lock()
	tg.init()
	if tg.isStopped() {
		tg.mu.Unlock()
		return ErrStopped
	}
	close(tg.stopChan)
	tg.mu.Unlock()

	tg.bmu.Lock()
	onStop := tg.onStopFns
	tg.bmu.Unlock()
	for i := len(onStop) - 1; i >= 0; i-- {
		onStop[i]()
	}

	tg.wg.Wait()

	tg.bmu.Lock()
	afterStop := tg.afterStopFns
	tg.bmu.Unlock()
	for i := len(afterStop) - 1; i >= 0; i-- {
		afterStop[i]()
	}
	return nil
}
