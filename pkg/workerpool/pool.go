// Package workerpool provides a bounded goroutine pool. The job pipeline
// uses it to cap per-job tool parallelism, and fan-out tools (reverse DNS)
// use it to cap lookups.
package workerpool

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// PanicHandler receives the recovered value of a panicking task.
type PanicHandler func(recovered any)

// Pool runs submitted tasks on at most Cap() goroutines.
// Workers are started lazily; a pool that never receives work never
// spawns a goroutine.
type Pool struct {
	workers int32
	tasks   chan func()

	// spawned worker goroutines
	spawned int32
	// tasks currently executing
	active int32
	closed int32

	onPanic PanicHandler
	wg      sync.WaitGroup
}

// Option configures a Pool.
type Option func(*Pool)

// WithPanicHandler installs h to observe task panics. Without a handler
// panics are swallowed and the worker keeps serving the queue.
func WithPanicHandler(h PanicHandler) Option {
	return func(p *Pool) { p.onPanic = h }
}

// New creates a pool with the given number of workers.
// A non-positive count falls back to GOMAXPROCS.
func New(workers int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: int32(workers),
		tasks:   make(chan func(), workers*4),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit queues task. It blocks while the queue is full and returns false
// if the pool is closed. The worker count never exceeds Cap().
func (p *Pool) Submit(task func()) (ok bool) {
	if atomic.LoadInt32(&p.closed) == 1 {
		return false
	}

	for {
		n := atomic.LoadInt32(&p.spawned)
		if n >= p.workers {
			break
		}
		if atomic.CompareAndSwapInt32(&p.spawned, n, n+1) {
			p.wg.Add(1)
			go p.worker()
			break
		}
	}

	// Close racing with Submit closes the channel under us.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	p.tasks <- task
	return true
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		if task != nil {
			p.run(task)
		}
	}
}

func (p *Pool) run(task func()) {
	atomic.AddInt32(&p.active, 1)
	defer func() {
		atomic.AddInt32(&p.active, -1)
		if r := recover(); r != nil && p.onPanic != nil {
			p.onPanic(r)
		}
	}()
	task()
}

// Running returns the number of tasks executing right now.
func (p *Pool) Running() int {
	return int(atomic.LoadInt32(&p.active))
}

// Cap returns the worker capacity.
func (p *Pool) Cap() int {
	return int(p.workers)
}

// Waiting returns the number of queued tasks.
func (p *Pool) Waiting() int {
	return len(p.tasks)
}

// Close stops accepting work and waits for queued tasks to finish.
func (p *Pool) Close() {
	if !atomic.CompareAndSwapInt32(&p.closed, 0, 1) {
		return
	}
	close(p.tasks)
	p.wg.Wait()
}

// IsClosed reports whether Close has been called.
func (p *Pool) IsClosed() bool {
	return atomic.LoadInt32(&p.closed) == 1
}

// ForEach runs fn for every item on the pool and blocks until all calls
// return. Items not submitted because the pool closed are reported through
// the returned error.
func ForEach[T any](p *Pool, items []T, fn func(i int, item T)) error {
	var wg sync.WaitGroup
	skipped := 0
	for i, item := range items {
		idx, val := i, item
		wg.Add(1)
		if !p.Submit(func() {
			defer wg.Done()
			fn(idx, val)
		}) {
			wg.Done()
			skipped++
		}
	}
	wg.Wait()
	if skipped > 0 {
		return fmt.Errorf("workerpool: pool closed, %d of %d items skipped", skipped, len(items))
	}
	return nil
}

// Map applies fn to each item on the pool and returns results in input order.
func Map[T, R any](p *Pool, items []T, fn func(T) R) []R {
	results := make([]R, len(items))
	_ = ForEach(p, items, func(i int, item T) {
		results[i] = fn(item)
	})
	return results
}
