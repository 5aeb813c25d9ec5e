package neterr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Unknown},
		{"dns", &net.DNSError{Err: "no such host", Name: "example.invalid", IsNotFound: true}, NoNetwork},
		{"refused", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, NoNetwork},
		{"deadline", fmt.Errorf("get: %w", context.DeadlineExceeded), Timeout},
		{"404", &StatusError{Code: 404, Method: "GET", Path: "Groups/x"}, NotFound},
		{"503", &StatusError{Code: 503, Method: "GET", Path: "Groups"}, ServerError},
		{"400", &StatusError{Code: 400, Method: "PUT", Path: "Groups/x"}, ClientError},
		{"tagged", WithKind(errors.New("bad json"), ParseError), ParseError},
		{"other", errors.New("boom"), Unknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "No internet connection. Please check your network settings and try again.", Message(NoNetwork))
	assert.Equal(t, Message(Unknown), Message(Kind(99)))
	assert.Equal(t, Message(ServerError), UserMessage(&StatusError{Code: 500}))
}

func TestRetryAlwaysFailing(t *testing.T) {
	var (
		calls   int
		waits   []time.Duration
		retried []int
	)
	opts := Options{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		OnRetry:     func(attempt int, _ error) { retried = append(retried, attempt) },
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	}

	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return &StatusError{Code: 500, Method: "GET", Path: "Groups"}
	}, opts)

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, waits)
	assert.Equal(t, []int{1, 2}, retried)

	var ne *Error
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, ServerError, ne.Kind)
	assert.Equal(t, 3, ne.Attempts)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return Permanent(WithKind(errors.New("garbage"), ParseError))
	}, Options{Sleep: func(context.Context, time.Duration) error { return nil }})

	assert.Equal(t, 1, calls)
	assert.Equal(t, ParseError, Classify(err))
}

func TestRetrySucceedsEventually(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("flaky")
		}
		return "ok", nil
	}, Options{Sleep: func(context.Context, time.Duration) error { return nil }})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}

func TestRetryHonoursCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("down")
	}, Options{MaxAttempts: 5})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryScheduleDoubles(t *testing.T) {
	var waits []time.Duration
	calls := 0
	err := Retry(context.Background(), func(context.Context) error {
		calls++
		return errors.New("down")
	}, Options{
		MaxAttempts: 4,
		BaseDelay:   500 * time.Millisecond,
		Sleep: func(_ context.Context, d time.Duration) error {
			waits = append(waits, d)
			return nil
		},
	})

	require.Error(t, err)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second}, waits)
}

func TestRetryStopsWhenWaitIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	calls := 0
	err := Retry(ctx, func(context.Context) error {
		calls++
		return &StatusError{Code: 503, Method: "GET", Path: "Groups"}
	}, Options{Sleep: func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}})

	var ne *Error
	require.ErrorAs(t, err, &ne)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, ne.Attempts)
	assert.Equal(t, ServerError, ne.Kind)
}
