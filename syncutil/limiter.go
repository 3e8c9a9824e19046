package syncutil

import "sync"

// Limiter is a counting semaphore that additionally supports raising or
// lowering its limit at runtime, and allows an in-progress Request to be
// aborted via a cancel channel. It is used to cap the number of outstanding
// upload workers or in-flight bytes without hard-coding the cap at
// construction time.
type Limiter struct {
	mu      sync.Mutex
	cond    *sync.Cond
	limit   int
	current int
}

// NewLimiter returns a Limiter with the given initial limit.
func NewLimiter(limit int) *Limiter {
	l := &Limiter{limit: limit}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// SetLimit changes the limiter's capacity. Raising the limit wakes any
// goroutines blocked in Request.
func (l *Limiter) SetLimit(limit int) {
	l.mu.Lock()
	l.limit = limit
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Request blocks until n units are available (current+n <= limit), or until
// cancel is closed. An exception is made when current == 0: a request for
// more than limit units is allowed to proceed by itself, so that a single
// oversized request is never permanently starved. Request returns true if it
// was aborted via cancel, false if it acquired the units.
func (l *Limiter) Request(n int, cancel <-chan struct{}) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cancel != nil {
		cancelled := make(chan struct{})
		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-cancel:
				l.mu.Lock()
				close(cancelled)
				l.cond.Broadcast()
				l.mu.Unlock()
			case <-done:
			}
		}()
		for l.current != 0 && l.current+n > l.limit {
			select {
			case <-cancelled:
				return true
			default:
			}
			l.cond.Wait()
			select {
			case <-cancelled:
				return true
			default:
			}
		}
	} else {
		for l.current != 0 && l.current+n > l.limit {
			l.cond.Wait()
		}
	}
	l.current += n
	return false
}

// Release returns n units to the limiter and wakes any blocked Request
// calls.
func (l *Limiter) Release(n int) {
	l.mu.Lock()
	l.current -= n
	l.mu.Unlock()
	l.cond.Broadcast()
}
