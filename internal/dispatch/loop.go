// Package dispatch runs callbacks on one goroutine. Background work reports
// back through Post so that everything touching the terminal, or any other
// single-owner state, happens on the loop.
package dispatch

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/shortrun/shortrun/internal/logging"
	"github.com/shortrun/shortrun/internal/workerpool"
)

var log = logging.L("dispatch")

// DefaultQueueSize is used when New is given a non-positive size.
const DefaultQueueSize = 64

// Loop is a FIFO of callbacks drained by whichever goroutine calls Run.
type Loop struct {
	queue    chan func()
	stop     chan struct{}
	stopOnce sync.Once
}

func New(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{
		queue: make(chan func(), size),
		stop:  make(chan struct{}),
	}
}

// Post queues fn, blocking while the queue is full. It returns false once
// the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stop:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.stop:
		return false
	}
}

// Stop makes Run return after the callbacks already queued have run.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Run executes posted callbacks in order until Stop is called or ctx ends.
// A panicking callback is logged and the loop carries on.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case fn := <-l.queue:
			l.call(fn)
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stop:
			for {
				select {
				case fn := <-l.queue:
					l.call(fn)
				default:
					return nil
				}
			}
		}
	}
}

func (l *Loop) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("callback panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	fn()
}

// Background runs job on pool and posts done(result, err) back to l. It
// returns false when the pool refuses the job.
func Background[T any](l *Loop, pool *workerpool.Pool, job func(context.Context) (T, error), done func(T, error)) bool {
	return pool.Submit(func() {
		v, err := job(pool.Context())
		l.Post(func() { done(v, err) })
	})
}
