package async

import (
	"context"
	"sync"
)

// Loop is a single-goroutine event loop. Everything posted to it runs in
// order on the goroutine that called Run.
type Loop struct {
	ch     chan func()
	closed chan struct{}
	once   sync.Once
}

func NewLoop(buffer int) *Loop {
	if buffer < 0 {
		buffer = 0
	}
	return &Loop{ch: make(chan func(), buffer), closed: make(chan struct{})}
}

// Post enqueues fn. It blocks while the queue is full and drops fn once
// the loop is closed.
func (l *Loop) Post(fn func()) {
	select {
	case <-l.closed:
	case l.ch <- fn:
	}
}

// Run executes posted functions until Close or ctx cancellation.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.closed:
			return nil
		case fn := <-l.ch:
			fn()
		}
	}
}

// RunPending executes whatever is queued right now and returns how many
// functions ran.
func (l *Loop) RunPending() int {
	n := 0
	for {
		select {
		case fn := <-l.ch:
			fn()
			n++
		default:
			return n
		}
	}
}

func (l *Loop) Close() {
	l.once.Do(func() { close(l.closed) })
}
