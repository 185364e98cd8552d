package runtime

import (
	"context"
	"sync"
)

// Promise is the eventual result of an asynchronous compile or
// instantiate. It settles exactly once; the error it settles with is the
// value produced by the background task, unchanged.
type Promise[T any] struct {
	val       T
	err       error
	done      chan struct{}
	callbacks []func(T, error)
	mu        sync.Mutex
}

func newPromise[T any]() *Promise[T] {
	return &Promise[T]{done: make(chan struct{})}
}

// async runs fn on its own goroutine and settles the promise with its
// result.
func async[T any](fn func() (T, error)) *Promise[T] {
	p := newPromise[T]()
	go func() {
		v, err := fn()
		p.settle(v, err)
	}()
	return p
}

// Resolved returns a promise already fulfilled with v.
func Resolved[T any](v T) *Promise[T] {
	p := newPromise[T]()
	p.settle(v, nil)
	return p
}

// Rejected returns a promise already rejected with err.
func Rejected[T any](err error) *Promise[T] {
	p := newPromise[T]()
	var zero T
	p.settle(zero, err)
	return p
}

func (p *Promise[T]) settle(v T, err error) {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		return
	default:
	}
	p.val, p.err = v, err
	close(p.done)
	callbacks := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb(v, err)
	}
}

// Await blocks until the promise settles or ctx is done. A done ctx
// returns ctx.Err() and leaves the promise running.
func (p *Promise[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.val, p.err
	default:
	}
	select {
	case <-p.done:
		return p.val, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the promise settles.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Then registers fn to run once the promise settles. Callbacks registered
// before settlement run in order on the settling goroutine; later ones run
// on a new goroutine.
func (p *Promise[T]) Then(fn func(T, error)) {
	p.mu.Lock()
	select {
	case <-p.done:
		p.mu.Unlock()
		go fn(p.val, p.err)
		return
	default:
	}
	p.callbacks = append(p.callbacks, fn)
	p.mu.Unlock()
}
