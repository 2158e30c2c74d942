// Package ratelimit wraps a raw change-event stream with a delivery policy.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/internal/clock"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const _configKeyThrottleMs = "suggestions.throttleMilliseconds"

// Module provides a Strategy selected from configuration.
var Module = fx.Provide(FromConfig)

// Strategy wraps a raw change-event stream with a delivery policy.
type Strategy interface {
	// Wrap consumes events from in and returns the filtered stream. The
	// returned channel is closed once in is closed and drained.
	Wrap(in <-chan entity.ChangeEvent) <-chan entity.ChangeEvent
}

// Params define values to be used by FromConfig.
type Params struct {
	fx.In

	Config config.Provider
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// FromConfig selects the configured strategy. An interval of zero selects the
// pass-through strategy, which forwards the raw stream unthrottled.
func FromConfig(p Params) (Strategy, error) {
	var intervalMs int64
	if err := p.Config.Get(_configKeyThrottleMs).Populate(&intervalMs); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyThrottleMs, err)
	}

	if intervalMs <= 0 {
		p.Logger.Infow("event throttling disabled, forwarding raw change events")
		return NewPassThrough(), nil
	}
	return NewThrottle(time.Duration(intervalMs)*time.Millisecond, p.Clock), nil
}

// NewThrottle returns a sampling throttle: the first event after a quiet
// period of at least interval is forwarded immediately, and any event arriving
// before interval has elapsed since the last forwarded event is dropped, not
// queued.
func NewThrottle(interval time.Duration, clk clock.Clock) Strategy {
	return &throttle{interval: interval, clock: clk}
}

// NewPassThrough returns a strategy that forwards every event unmodified.
func NewPassThrough() Strategy {
	return passThrough{}
}

type throttle struct {
	interval time.Duration
	clock    clock.Clock
}

func (t *throttle) Wrap(in <-chan entity.ChangeEvent) <-chan entity.ChangeEvent {
	out := make(chan entity.ChangeEvent, cap(in))
	go func() {
		defer close(out)
		var lastForwarded time.Time
		for ev := range in {
			now := t.clock.Now()
			if !lastForwarded.IsZero() && now.Sub(lastForwarded) < t.interval {
				continue
			}
			lastForwarded = now
			out <- ev
		}
	}()
	return out
}

type passThrough struct{}

func (passThrough) Wrap(in <-chan entity.ChangeEvent) <-chan entity.ChangeEvent {
	return in
}
