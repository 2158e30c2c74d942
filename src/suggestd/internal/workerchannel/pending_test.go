package workerchannel

import (
	"context"
	"testing"
	"time"

	"github.com/codeassist/suggestd/src/suggestd/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingCallResolvesWithValue(t *testing.T) {
	pc := newPendingCall()
	pc.resolve(nil)
	assert.NoError(t, pc.await(context.Background()))
}

func TestPendingCallResolvesWithError(t *testing.T) {
	pc := newPendingCall()
	want := errors.New("worker unavailable")
	pc.resolve(want)
	assert.ErrorIs(t, pc.await(context.Background()), want)
}

func TestPendingCallOnlyFirstResolutionCounts(t *testing.T) {
	pc := newPendingCall()
	pc.resolve(nil)
	pc.resolve(errors.New("late failure"))
	assert.NoError(t, pc.await(context.Background()))
}

func TestPendingCallCancellation(t *testing.T) {
	pc := newPendingCall()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pc.await(ctx)
	require.ErrorIs(t, err, context.Canceled)

	// A resolver arriving after the awaiter has left must not block.
	done := make(chan struct{})
	go func() {
		pc.resolve(errors.New("too late"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("late resolve blocked")
	}
}

func TestPendingCallConcurrentResolvers(t *testing.T) {
	pc := newPendingCall()
	for i := 0; i < 8; i++ {
		go pc.resolve(nil)
	}
	assert.NoError(t, pc.await(context.Background()))
}
