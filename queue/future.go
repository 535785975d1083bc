// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queue

import (
	"context"
	"sync"

	"github.com/33cn/tradenet/types"
)

// Listener completion callback, always executed on the future's queue
type Listener[T any] func(val T, err error)

// Future pending result of an asynchronous operation
type Future[T any] struct {
	q         *Queue
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	val       T
	err       error
	listeners []Listener[T]
}

// NewFuture pending future whose listeners run on q
func NewFuture[T any](q *Queue) *Future[T] {
	return &Future[T]{q: q, done: make(chan struct{})}
}

// Succeeded already resolved future
func Succeeded[T any](q *Queue, val T) *Future[T] {
	f := NewFuture[T](q)
	f.Complete(val, nil)
	return f
}

// Failed already failed future
func Failed[T any](q *Queue, err error) *Future[T] {
	f := NewFuture[T](q)
	var zero T
	f.Complete(zero, err)
	return f
}

// Go run fn on a new goroutine and resolve the future with its result
func Go[T any](q *Queue, fn func() (T, error)) *Future[T] {
	f := NewFuture[T](q)
	go func() {
		val, err := fn()
		f.Complete(val, err)
	}()
	return f
}

// Complete resolve the future, only the first call has effect
func (f *Future[T]) Complete(val T, err error) bool {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return false
	}
	f.completed = true
	f.val, f.err = val, err
	listeners := f.listeners
	f.listeners = nil
	close(f.done)
	f.mu.Unlock()
	for _, l := range listeners {
		f.post(l)
	}
	return true
}

// AddListener register a callback, posted to the queue once the future resolves
func (f *Future[T]) AddListener(l Listener[T]) *Future[T] {
	if l == nil {
		return f
	}
	f.mu.Lock()
	if !f.completed {
		f.listeners = append(f.listeners, l)
		f.mu.Unlock()
		return f
	}
	f.mu.Unlock()
	f.post(l)
	return f
}

func (f *Future[T]) post(l Listener[T]) {
	val, err := f.val, f.err
	if perr := f.q.Post(func() { l(val, err) }); perr != nil {
		qlog.Debug("drop listener", "queue", f.q.Name(), "err", perr)
	}
}

// Done closed when resolved
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsDone resolved
func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Await block until resolved or ctx done
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, types.ErrTimeout
	}
}

// Then chain an operation started on success, run on the queue.
// A failure of f or of the next future resolves the returned future.
func Then[T, U any](f *Future[T], next func(T) *Future[U]) *Future[U] {
	out := NewFuture[U](f.q)
	f.AddListener(func(val T, err error) {
		if err != nil {
			var zero U
			out.Complete(zero, err)
			return
		}
		n := next(val)
		if n == nil {
			var zero U
			out.Complete(zero, types.ErrInvalidParam)
			return
		}
		go func() {
			<-n.done
			out.Complete(n.val, n.err)
		}()
	})
	return out
}
