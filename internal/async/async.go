// Package async runs blocking work off the caller's goroutine and delivers
// exactly one callback back through a Dispatcher.
package async

import (
	"context"
	"fmt"
	"sync"

	"partymaker/internal/logging"
	"partymaker/internal/neterr"
)

// Dispatcher is the execution context callbacks are delivered on.
type Dispatcher interface {
	Post(fn func())
}

// Inline runs callbacks on the goroutine that finished the work.
type Inline struct{}

func (Inline) Post(fn func()) { fn() }

// Callbacks receive the outcome of a task. Either may be nil.
type Callbacks[T any] struct {
	OnSuccess func(T)
	OnError   func(msg string)
	// Describe turns the failure into the OnError text. Defaults to
	// neterr.UserMessage.
	Describe func(error) string
}

// Handle controls a running task.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	cancelled bool
}

// Cancel cancels the task's context. A callback not yet run on the
// dispatcher is dropped.
func (h *Handle) Cancel() {
	h.mu.Lock()
	h.cancelled = true
	h.mu.Unlock()
	h.cancel()
}

// Wait blocks until the task has returned and its callback, if any, has
// been handed to the dispatcher.
func (h *Handle) Wait() { <-h.done }

func (h *Handle) Done() <-chan struct{} { return h.done }

func (h *Handle) live() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.cancelled
}

// Go runs fn on its own goroutine and posts the matching callback to d.
func Go[T any](ctx context.Context, d Dispatcher, fn func(context.Context) (T, error), cb Callbacks[T]) *Handle {
	if d == nil {
		d = Inline{}
	}
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(h.done)
		defer cancel()

		v, err := run(ctx, fn)

		if !h.live() {
			return
		}
		if err != nil {
			describe := cb.Describe
			if describe == nil {
				describe = neterr.UserMessage
			}
			msg := describe(err)
			d.Post(func() {
				if h.live() && cb.OnError != nil {
					cb.OnError(msg)
				}
			})
			return
		}
		d.Post(func() {
			if h.live() && cb.OnSuccess != nil {
				cb.OnSuccess(v)
			}
		})
	}()
	return h
}

func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (v T, err error) {
	defer func() {
		if p := recover(); p != nil {
			logging.For("async").Error("task panicked", "panic", p)
			err = fmt.Errorf("task panicked: %v", p)
		}
	}()
	return fn(ctx)
}
