package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"partymaker/internal/neterr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoDeliversSuccessOnDispatcher(t *testing.T) {
	loop := NewLoop(4)
	var got []int
	h := Go(context.Background(), loop, func(context.Context) (int, error) {
		return 42, nil
	}, Callbacks[int]{
		OnSuccess: func(v int) { got = append(got, v) },
		OnError:   func(string) { t.Error("unexpected error callback") },
	})
	h.Wait()

	assert.Empty(t, got, "callback must wait for the loop")
	assert.Equal(t, 1, loop.RunPending())
	assert.Equal(t, []int{42}, got)
}

func TestGoDeliversErrorMessage(t *testing.T) {
	var msgs []string
	h := Go(context.Background(), Inline{}, func(context.Context) (string, error) {
		return "", &neterr.StatusError{Code: 503, Method: "POST", Path: "/Groups/g1"}
	}, Callbacks[string]{
		OnSuccess: func(string) { t.Error("unexpected success") },
		OnError:   func(msg string) { msgs = append(msgs, msg) },
	})
	h.Wait()
	assert.Equal(t, []string{neterr.Message(neterr.ServerError)}, msgs)

	msgs = nil
	h = Go(context.Background(), Inline{}, func(context.Context) (string, error) {
		return "", errors.New("boom")
	}, Callbacks[string]{
		OnError:  func(msg string) { msgs = append(msgs, msg) },
		Describe: func(err error) string { return "save group: " + err.Error() },
	})
	h.Wait()
	assert.Equal(t, []string{"save group: boom"}, msgs)
}

func TestCancelledHandleNeverDelivers(t *testing.T) {
	loop := NewLoop(4)
	delivered := 0
	cb := Callbacks[int]{
		OnSuccess: func(int) { delivered++ },
		OnError:   func(string) { delivered++ },
	}

	// cancelled while running
	started := make(chan struct{})
	h := Go(context.Background(), loop, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}, cb)
	<-started
	h.Cancel()
	h.Wait()

	// cancelled after the result was queued
	h = Go(context.Background(), loop, func(context.Context) (int, error) { return 1, nil }, cb)
	h.Wait()
	h.Cancel()

	loop.RunPending()
	assert.Zero(t, delivered)
}

func TestGoRecoversPanics(t *testing.T) {
	var msg string
	h := Go(context.Background(), Inline{}, func(context.Context) (int, error) {
		panic("bad")
	}, Callbacks[int]{OnError: func(m string) { msg = m }})
	h.Wait()
	assert.Equal(t, neterr.Message(neterr.Unknown), msg)
}

func TestLoopRunAndClose(t *testing.T) {
	loop := NewLoop(0)
	done := make(chan error, 1)
	go func() { done <- loop.Run(context.Background()) }()

	ran := make(chan struct{})
	loop.Post(func() { close(ran) })
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("posted function did not run")
	}

	loop.Close()
	require.NoError(t, <-done)
	loop.Post(func() { t.Error("ran after close") })
}
