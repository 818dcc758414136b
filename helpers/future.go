package helpers

import (
	"context"
	"sync"
)

// Future holds single result of asynchronous operation.
// First Complete or Fail wins, later calls return false.
// Done channel allows waiting on result in custom select.
type Future[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	value T
	err   error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) Done() <-chan struct{} { return f.done }

func (f *Future[T]) Complete(v T) bool { return f.resolve(v, nil) }

func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.resolve(zero, err)
}

func (f *Future[T]) resolve(v T, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if IsClosed(f.done) {
		return false
	}
	f.value, f.err = v, err
	close(f.done)
	return true
}

// Result is zero value and nil error until Done.
func (f *Future[T]) Result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value, f.err
}

func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.Result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
