package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/igusev/launchq/internal/logger"
)

// ErrClosed is returned by operations on a closed Executor
var ErrClosed = errors.New("executor closed")

// Task is the work of one generation. It must return promptly once ctx is cancelled.
type Task[T any] func(ctx context.Context) (T, error)

// Option configures an Executor
type Option func(*options)

type options struct {
	poster  Poster
	pool    *Pool
	onError func(error)
	name    string
}

// WithPoster delivers finish callbacks through p instead of calling them inline
func WithPoster(p Poster) Option {
	return func(o *options) { o.poster = p }
}

// WithPool runs tasks on p instead of dedicated goroutines
func WithPool(p *Pool) Option {
	return func(o *options) { o.pool = p }
}

// WithErrorHandler receives task errors (posted like finish callbacks). Defaults to a warning log.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithName labels the executor in log messages
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// Executor owns a single task slot: at most one generation of its task runs at a time.
//
// Run while busy aborts the current generation and reruns once it exits. Aborted
// generations never reach the finish callback. The callback receives the result of
// the last completed generation through the configured Poster.
type Executor[T any] struct {
	task   Task[T]
	finish func(T)
	opts   options

	mu      sync.Mutex
	running bool
	rerun   bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an idle Executor. finish may be nil.
func New[T any](task Task[T], finish func(T), opts ...Option) *Executor[T] {
	o := options{poster: Inline, name: "executor"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.onError == nil {
		name := o.name
		o.onError = func(err error) { logger.Warn("%s: %v", name, err) }
	}
	return &Executor[T]{task: task, finish: finish, opts: o}
}

// Run starts the task, or aborts the running generation and schedules a rerun
func (e *Executor[T]) Run() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	if e.running {
		e.rerun = true
		e.cancel()
		return
	}
	e.start()
}

// TryRun starts the task only when idle and reports whether it did
func (e *Executor[T]) TryRun() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.running {
		return false
	}
	e.start()
	return true
}

// Stop aborts the running generation without scheduling a rerun
func (e *Executor[T]) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		e.rerun = false
		e.cancel()
	}
}

// IsRunning reports whether a generation is in flight
func (e *Executor[T]) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// WaitForFinished blocks until the slot is idle (including pending reruns) and the
// last completion has been posted, or ctx ends
func (e *Executor[T]) WaitForFinished(ctx context.Context) error {
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close aborts any running generation and blocks until it has exited.
// Later Run calls are ignored.
func (e *Executor[T]) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.rerun = false
	if e.running {
		e.cancel()
	}
	done := e.done
	e.mu.Unlock()

	if done != nil {
		<-done
	}
	return nil
}

// start must be called with e.mu held
func (e *Executor[T]) start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.rerun = false
	done := make(chan struct{})
	e.done = done

	spawn(e.opts.pool, func() { e.work(ctx, cancel, done) })
}

// work runs generations back to back until no rerun is pending
func (e *Executor[T]) work(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)

	for {
		result, err := e.call(ctx)

		e.mu.Lock()
		aborted := ctx.Err() != nil
		cancel()
		if e.rerun && !e.closed {
			e.rerun = false
			ctx, cancel = context.WithCancel(context.Background())
			e.cancel = cancel
			e.mu.Unlock()
			continue
		}
		e.running = false
		e.mu.Unlock()

		switch {
		case aborted:
			// Discarded
		case err != nil:
			onError := e.opts.onError
			e.opts.poster.Post(func() { onError(err) })
		case e.finish != nil:
			finish := e.finish
			e.opts.poster.Post(func() { finish(result) })
		}
		return
	}
}

func (e *Executor[T]) call(ctx context.Context) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: task panicked: %v", e.opts.name, r)
		}
	}()
	return e.task(ctx)
}
