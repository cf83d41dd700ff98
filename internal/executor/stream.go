package executor

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
)

type streamStep[T any] struct {
	batch T
	ok    bool
}

// Stream steps through a lazy, finite, non-restartable sequence of batches.
// Each Next pulls one batch on a worker and posts it to emit. When the sequence
// ends, done is posted once with nil, or with the producer's failure.
type Stream[T any] struct {
	exec      *Executor[streamStep[T]]
	next      func() (T, bool)
	stop      func()
	exhausted atomic.Bool
}

// NewStream wraps seq. No batch is produced until the first Next.
func NewStream[T any](seq iter.Seq[T], emit func(T), done func(error), opts ...Option) *Stream[T] {
	s := &Stream[T]{}
	s.next, s.stop = iter.Pull(seq)

	finish := func(step streamStep[T]) {
		if !step.ok {
			if done != nil {
				done(nil)
			}
			return
		}
		emit(step.batch)
	}
	fail := func(err error) {
		if done != nil {
			done(err)
		}
	}

	opts = append(opts, WithErrorHandler(fail))
	s.exec = New(func(ctx context.Context) (streamStep[T], error) {
		if err := ctx.Err(); err != nil {
			return streamStep[T]{}, err
		}
		return s.pull()
	}, finish, opts...)
	return s
}

// Next requests the next batch. Returns false once the sequence is exhausted.
// A request made while a batch is being produced is a no-op.
func (s *Stream[T]) Next() bool {
	if s.exhausted.Load() {
		return false
	}
	s.exec.TryRun()
	return true
}

// Exhausted reports whether the producer has finished
func (s *Stream[T]) Exhausted() bool {
	return s.exhausted.Load()
}

// IsRunning reports whether a batch is being produced
func (s *Stream[T]) IsRunning() bool {
	return s.exec.IsRunning()
}

// WaitForFinished blocks until the current step has been posted or ctx ends
func (s *Stream[T]) WaitForFinished(ctx context.Context) error {
	return s.exec.WaitForFinished(ctx)
}

// Close abandons the sequence, waiting for an in-flight step to exit
func (s *Stream[T]) Close() error {
	err := s.exec.Close()
	s.exhausted.Store(true)
	s.stop()
	return err
}

func (s *Stream[T]) pull() (step streamStep[T], err error) {
	defer func() {
		if r := recover(); r != nil {
			s.exhausted.Store(true)
			err = fmt.Errorf("stream producer panicked: %v", r)
		}
	}()

	batch, ok := s.next()
	if !ok {
		s.exhausted.Store(true)
	}
	return streamStep[T]{batch: batch, ok: ok}, nil
}
