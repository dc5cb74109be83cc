package graph

import (
	"context"
	"errors"
	"sync"
)

// ErrUnresolved is returned by Promise.Get before the promise is settled.
var ErrUnresolved = errors.New("value not yet resolved")

// Promise is a write-once value produced by one node and consumed by the
// nodes that depend on it.
type Promise[T any] struct {
	name string
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

// NewPromise returns an unsettled promise. name is used in error messages.
func NewPromise[T any](name string) *Promise[T] {
	return &Promise[T]{name: name, done: make(chan struct{})}
}

// Name returns the promise name.
func (p *Promise[T]) Name() string {
	return p.name
}

// Resolve settles the promise with v. Only the first Resolve or Fail wins;
// it reports whether this call settled the promise.
func (p *Promise[T]) Resolve(v T) bool {
	settled := false
	p.once.Do(func() {
		p.val = v
		settled = true
		close(p.done)
	})
	return settled
}

// Fail settles the promise with err.
func (p *Promise[T]) Fail(err error) bool {
	if err == nil {
		err = errors.New("promise failed without a cause")
	}
	settled := false
	p.once.Do(func() {
		p.err = err
		settled = true
		close(p.done)
	})
	return settled
}

// Done is closed once the promise is settled.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the promise settles or ctx is done.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Get returns the settled value without blocking. It returns ErrUnresolved
// if the producer has not finished yet.
func (p *Promise[T]) Get() (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	default:
		var zero T
		return zero, &UnresolvedError{Name: p.name}
	}
}

// UnresolvedError reports an eager read of a promise.
type UnresolvedError struct {
	Name string
}

func (e *UnresolvedError) Error() string {
	return e.Name + ": " + ErrUnresolved.Error()
}

func (e *UnresolvedError) Unwrap() error {
	return ErrUnresolved
}
