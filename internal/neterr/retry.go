package neterr

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

type Options struct {
	// MaxAttempts is the total number of calls, including the first.
	MaxAttempts int
	// BaseDelay is the wait after the first failure; it doubles on each retry.
	BaseDelay time.Duration
	// OnRetry runs before each wait with the attempt that just failed.
	OnRetry func(attempt int, err error)
	// Sleep waits for d or until ctx is done, returning an error only in the
	// latter case. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultOptions() Options {
	return Options{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay < 0 {
		o.BaseDelay = 0
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	return o
}

// schedule is the wait sequence BaseDelay, 2*BaseDelay, ... without jitter,
// capped at MaxAttempts-1 waits.
func (o Options) schedule(ctx context.Context) backoff.BackOffContext {
	eb := &backoff.ExponentialBackOff{
		InitialInterval:     o.BaseDelay,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         time.Duration(math.MaxInt64),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	eb.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(o.MaxAttempts-1)), ctx)
}

// Retry calls op until it succeeds, fails permanently, ctx is done or
// MaxAttempts calls were made. The returned error is an *Error.
func Retry(ctx context.Context, op func(ctx context.Context) error, opts Options) error {
	opts = opts.withDefaults()

	var last error
	attempt := 0
	_ = backoff.RetryNotifyWithTimer(func() error {
		attempt++
		last = op(ctx)
		if last == nil {
			return nil
		}
		if IsPermanent(last) || ctx.Err() != nil {
			return backoff.Permanent(last)
		}
		return last
	}, opts.schedule(ctx), func(err error, _ time.Duration) {
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}
	}, &sleepTimer{ctx: ctx, sleep: opts.Sleep})

	if last == nil {
		return nil
	}
	return &Error{Kind: Classify(last), Attempts: attempt, Err: last}
}

// sleepTimer drives backoff's waits through Options.Sleep. The channel only
// fires when the sleep completed; a cancelled ctx ends the retry loop.
type sleepTimer struct {
	ctx   context.Context
	sleep func(ctx context.Context, d time.Duration) error
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)
	if err := t.sleep(t.ctx, d); err == nil {
		t.c <- time.Now()
	}
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time { return t.c }

// Do is Retry for operations that produce a value.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	var out T
	err := Retry(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, opts)
	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
