// Package upload implements the bounded worker pool that serves
// GET_CHUNK requests, per spec.md §4.7.
package upload

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/dlan-project/dlan-core/syncutil"
)

// Job is one unit of upload work: stream a chunk's bytes to a
// connection.
type Job func(ctx context.Context)

// Pool is a bounded worker pool: at least minThreads workers are kept
// warm, growing on demand up to a semaphore-enforced ceiling, with
// idle workers reaped after threadLifetime.
type Pool struct {
	tg syncutil.ThreadGroup

	minThreads    int
	threadLifetime time.Duration
	sem           *semaphore.Weighted

	jobs chan Job

	mu      sync.Mutex
	workers int
}

// NewPool returns a Pool keeping at least minThreads workers alive,
// growing up to maxThreads concurrent workers.
func NewPool(minThreads, maxThreads int, threadLifetime time.Duration) *Pool {
	p := &Pool{
		minThreads:     minThreads,
		threadLifetime: threadLifetime,
		sem:            semaphore.NewWeighted(int64(maxThreads - minThreads)), // grown workers only; permanent ones hold no slot
		jobs:           make(chan Job, maxThreads*4),
	}
	return p
}

// Start launches the pool's minimum worker set.
func (p *Pool) Start() error {
	for i := 0; i < p.minThreads; i++ {
		if err := p.spawnWorker(true); err != nil {
			return err
		}
	}
	return nil
}

// Stop halts every worker.
func (p *Pool) Stop() error {
	return p.tg.Stop()
}

// Submit enqueues job for execution by some worker. When the job queue
// is full it tries to grow the pool (up to the semaphore ceiling) and
// hands job over from a new goroutine.
func (p *Pool) Submit(job Job) {
	select {
	case p.jobs <- job:
	default:
		// queue momentarily full: try to grow past the minimum, bounded
		// by the semaphore ceiling acquired inside spawnWorker.
		go func() {
			_ = p.spawnWorker(false)
			p.jobs <- job
		}()
	}
}

func (p *Pool) spawnWorker(permanent bool) error {
	if !permanent {
		if !p.sem.TryAcquire(1) {
			return nil // at ceiling; job will wait in the channel for an existing worker
		}
	}
	if err := p.tg.Add(); err != nil {
		if !permanent {
			p.sem.Release(1)
		}
		return err
	}

	p.mu.Lock()
	p.workers++
	p.mu.Unlock()

	go p.runWorker(permanent)
	return nil
}

func (p *Pool) runWorker(permanent bool) {
	defer p.tg.Done()
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
		if !permanent {
			p.sem.Release(1)
		}
	}()

	idleTimer := time.NewTimer(p.threadLifetime)
	defer idleTimer.Stop()

	for {
		select {
		case job := <-p.jobs:
			if !idleTimer.Stop() {
				<-idleTimer.C
			}
			job(context.Background())
			idleTimer.Reset(p.threadLifetime)
		case <-idleTimer.C:
			if !permanent {
				return // idle-worker reaping, per spec.md §4.7
			}
			idleTimer.Reset(p.threadLifetime)
		case <-p.tg.StopChan():
			return
		}
	}
}

// Workers returns the current worker count, for tests/diagnostics.
func (p *Pool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}
