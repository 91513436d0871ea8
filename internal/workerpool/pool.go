// Package workerpool runs short jobs on a fixed set of goroutines. It backs
// the fan-outs that probe many tasks or shortcuts at once.
package workerpool

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/shortrun/shortrun/internal/logging"
)

var log = logging.L("workerpool")

// Task is a unit of work submitted to the pool.
type Task func()

// Pool is a bounded goroutine pool with a fixed-size queue. Submit never
// blocks; Drain closes the pool for good.
type Pool struct {
	workers int
	queue   chan Task
	pending sync.WaitGroup
	panics  atomic.Int64

	// mu orders Submit's send against Drain closing the queue.
	mu     sync.RWMutex
	open   bool
	closed sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

// New starts workers goroutines behind a queue of queueSize. Both are
// raised to at least one.
func New(workers, queueSize int) *Pool {
	workers = max(workers, 1)
	queueSize = max(queueSize, 1)

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		queue:   make(chan Task, queueSize),
		open:    true,
		ctx:     ctx,
		cancel:  cancel,
	}
	for range workers {
		go func() {
			for task := range p.queue {
				p.run(task)
			}
		}()
	}
	log.Debug("worker pool started", "workers", workers, "queueSize", queueSize)
	return p
}

// SizeForCPU returns the logical CPU count clamped to [lo, hi].
func SizeForCPU(lo, hi int) int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	return min(max(n, lo), hi)
}

// Workers returns the number of worker goroutines.
func (p *Pool) Workers() int {
	return p.workers
}

// Context is cancelled once the pool has drained.
func (p *Pool) Context() context.Context {
	return p.ctx
}

// Panics counts tasks that panicked. The panic is logged and the worker
// carries on.
func (p *Pool) Panics() int64 {
	return p.panics.Load()
}

// Submit enqueues task. It returns false once the pool has drained or when
// the queue is full.
func (p *Pool) Submit(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.open {
		return false
	}

	p.pending.Add(1)
	select {
	case p.queue <- task:
		return true
	default:
		p.pending.Done()
		log.Warn("worker pool queue full, task rejected", "workers", p.workers)
		return false
	}
}

// Drain refuses new work and waits for queued and running tasks, or for ctx
// to end, whichever comes first. Workers exit once the queue is empty.
func (p *Pool) Drain(ctx context.Context) {
	p.mu.Lock()
	p.open = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Debug("worker pool drained")
	case <-ctx.Done():
		log.Warn("worker pool drain abandoned", logging.KeyError, ctx.Err().Error())
	}

	p.cancel()
	p.closed.Do(func() { close(p.queue) })
}

func (p *Pool) run(task Task) {
	defer p.pending.Done()
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			log.Error("task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	task()
}

// Each calls fn for every item on a pool of workers goroutines and waits for
// every call to return. Items that have not started when ctx ends are
// skipped and ctx.Err() is returned. fn must be safe for concurrent use.
func Each[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, i int, item T)) error {
	if len(items) == 0 {
		return ctx.Err()
	}
	p := New(min(workers, len(items)), len(items))
	for i, item := range items {
		p.Submit(func() {
			if ctx.Err() != nil {
				return
			}
			fn(ctx, i, item)
		})
	}
	p.Drain(context.Background())
	return ctx.Err()
}
