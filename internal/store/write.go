package store

import (
	"context"
	"fmt"
)

// Future is the eventual result of a Write.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func resolvedFuture[T any](val T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(val, err)
	return f
}

func (f *Future[T]) resolve(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether the result is available without waiting.
func (f *Future[T]) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the write finishes or ctx is done. Giving up on the
// wait does not cancel the write itself.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Write runs body as a write on s and returns its eventual result.
//
// If ctx already carries a write transaction on s (body of Update or of an
// enclosing Write), body runs synchronously inside it and the returned
// Future is already resolved. Nested transactions are never started.
//
// Otherwise body is queued for the store's background writer and runs in a
// new transaction; the Future resolves after commit, or with the error that
// rolled the transaction back. Every failure is logged here, whether or not
// the caller looks at the Future.
func Write[T any](ctx context.Context, s *Store, body func(tx *Tx) (T, error)) *Future[T] {
	if tx, ok := s.txFrom(ctx); ok {
		val, err := body(tx)
		if err != nil {
			s.logWriteFailure(err, true)
		}
		return resolvedFuture(val, err)
	}

	f := newFuture[T]()
	bg := context.WithoutCancel(ctx)

	job := func() {
		var out T
		err := s.Update(bg, func(tx *Tx) error {
			val, err := body(tx)
			out = val
			return err
		})
		if err != nil {
			var zero T
			out = zero
			s.logWriteFailure(err, false)
		}
		s.observeWrite(err)
		f.resolve(out, err)
	}

	if !s.queue.Enqueue(job) {
		err := fmt.Errorf("schedule write: %w", ErrClosed)
		s.logWriteFailure(err, false)
		s.observeWrite(err)
		var zero T
		f.resolve(zero, err)
	}
	return f
}

// runWriter drains the write queue until it is closed and empty.
func (s *Store) runWriter() {
	defer s.wg.Done()
	for {
		job, ok := s.queue.Dequeue()
		if !ok {
			return
		}
		job()
	}
}

func (s *Store) logWriteFailure(err error, reentrant bool) {
	s.log.Error("store write failed",
		"error", err,
		"reentrant", reentrant,
		"path", s.path,
		"in_memory", s.memory,
	)
}

func (s *Store) observeWrite(err error) {
	if s.recorder != nil {
		s.recorder.ObserveWrite(err)
	}
}
