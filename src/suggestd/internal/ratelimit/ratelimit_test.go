package ratelimit

import (
	"testing"
	"time"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/internal/clock"
	"github.com/codeassist/suggestd/src/suggestd/internal/clock/clocktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/config"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestPassThroughForwardsEverything(t *testing.T) {
	in := make(chan entity.ChangeEvent, 4)
	out := NewPassThrough().Wrap(in)

	for i := 0; i < 4; i++ {
		in <- entity.ChangeEvent{Kind: entity.ChangeEventValueChanged}
	}
	close(in)

	count := 0
	for range out {
		count++
	}
	assert.Equal(t, 4, count)
}

func TestThrottleSamples(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))

	// Events at 0ms, 10ms, 250ms and 260ms against a 200ms interval: the
	// first of each quiet period survives, the trailing ones are dropped.
	offsets := []time.Duration{0, 10 * time.Millisecond, 250 * time.Millisecond, 260 * time.Millisecond}

	in := make(chan entity.ChangeEvent, len(offsets))
	out := NewThrottle(200*time.Millisecond, clk).Wrap(in)

	forwarded := 0
	last := time.Duration(0)
	for _, offset := range offsets {
		clk.Advance(offset - last)
		last = offset
		in <- entity.ChangeEvent{ReceivedAt: clk.Now()}
		select {
		case <-out:
			forwarded++
		case <-time.After(50 * time.Millisecond):
		}
	}
	close(in)
	for range out {
		forwarded++
	}

	assert.Equal(t, 2, forwarded)
}

func TestThrottleDropsDoNotQueue(t *testing.T) {
	clk := clocktest.New(time.Unix(0, 0))
	in := make(chan entity.ChangeEvent, 8)
	out := NewThrottle(200*time.Millisecond, clk).Wrap(in)

	// A burst within one interval yields exactly one forwarded event, and no
	// delayed delivery of the dropped ones.
	for i := 0; i < 8; i++ {
		in <- entity.ChangeEvent{}
	}
	close(in)

	count := 0
	for range out {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name        string
		intervalMs  int64
		passThrough bool
	}{
		{name: "disabled selects pass-through", intervalMs: 0, passThrough: true},
		{name: "negative selects pass-through", intervalMs: -5, passThrough: true},
		{name: "positive selects throttle", intervalMs: 200, passThrough: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.NewStaticProvider(map[string]interface{}{
				"suggestions": map[string]interface{}{
					"throttleMilliseconds": tt.intervalMs,
				},
			})
			require.NoError(t, err)

			strategy, err := FromConfig(Params{
				Config: cfg,
				Clock:  clock.New(),
				Logger: zap.NewNop().Sugar(),
			})
			require.NoError(t, err)

			_, isPassThrough := strategy.(passThrough)
			assert.Equal(t, tt.passThrough, isPassThrough)
		})
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
