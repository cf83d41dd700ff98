// Package executor runs background work for a single owner goroutine.
//
// Work runs on a bounded Pool; completions are handed back through a Poster,
// usually a Loop drained by the owner (the UI goroutine).
package executor

import (
	"context"
	"sync"
)

// Poster delivers a completion callback to the owning goroutine
type Poster interface {
	Post(fn func())
}

// PosterFunc adapts a function to the Poster interface
type PosterFunc func(fn func())

// Post calls f(fn)
func (f PosterFunc) Post(fn func()) { f(fn) }

// Inline runs callbacks immediately on the posting goroutine
var Inline Poster = PosterFunc(func(fn func()) { fn() })

// Loop is a single-consumer callback queue.
// Post never blocks, so the owner may post to its own loop.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	wake      chan struct{} // Holds at most one pending wakeup
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoop creates a Loop; capacity preallocates the queue
func NewLoop(capacity int) *Loop {
	if capacity < 1 {
		capacity = 1
	}
	return &Loop{
		queue: make([]func(), 0, capacity),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Post enqueues fn. Dropped after Close.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Wake is signalled after Post; owners that multiplex it with other events
// call Drain when it fires
func (l *Loop) Wake() <-chan struct{} {
	return l.wake
}

// Run drains callbacks until ctx is cancelled or the loop is closed
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-l.wake:
			l.Drain()
		case <-l.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain runs every callback queued right now and returns how many ran.
// Callbacks posted while draining wait for the next Drain.
func (l *Loop) Drain() int {
	l.mu.Lock()
	queue := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range queue {
		fn()
	}
	return len(queue)
}

// Close stops Run and makes further Posts no-ops
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	})
}
