// Package eventstream fans editor change notifications out to per-session subscriptions.
package eventstream

import (
	"context"
	"sync"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Channel buffer size per subscription. A burst of keystrokes produces one
// event per change notification, so this accommodates several bursts before
// the observation loop has drained any of them.
const _bufferSize = 64

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Stream delivers editor change events to the observation loop subscribed for each session.
type Stream interface {
	// Publish delivers an event to the subscription for its session, if one
	// exists. Publish never blocks; events beyond a saturated subscriber are
	// dropped.
	Publish(ctx context.Context, ev entity.ChangeEvent)

	// Subscribe returns a fresh event channel for the given session. Any
	// previous subscription for the same session is closed first, so events
	// from a stale editor never leak into a new observation loop. The channel
	// is closed on Unsubscribe or replacement.
	Subscribe(ctx context.Context, sessionID uuid.UUID) <-chan entity.ChangeEvent

	// Unsubscribe closes the session's subscription, if any.
	Unsubscribe(ctx context.Context, sessionID uuid.UUID)
}

// Params define values to be used by the stream.
type Params struct {
	fx.In

	Logger *zap.SugaredLogger
	Stats  tally.Scope
}

type stream struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]chan entity.ChangeEvent
	logger *zap.SugaredLogger
	stats  tally.Scope
}

// New creates a Stream for routing editor change events.
func New(p Params) Stream {
	return &stream{
		subs:   make(map[uuid.UUID]chan entity.ChangeEvent),
		logger: p.Logger,
		stats:  p.Stats.SubScope("event_stream"),
	}
}

func (s *stream) Publish(ctx context.Context, ev entity.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.subs[ev.SessionUUID]
	if !ok {
		s.stats.Counter("unrouted").Inc(1)
		return
	}

	select {
	case ch <- ev:
		s.stats.Counter("published").Inc(1)
	default:
		// Subscriber saturated. Dropping is safe, the debounce scheduler only
		// cares that at least one event of a burst arrives.
		s.stats.Counter("dropped").Inc(1)
	}
}

func (s *stream) Subscribe(ctx context.Context, sessionID uuid.UUID) <-chan entity.ChangeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.subs[sessionID]; ok {
		close(prev)
	}

	ch := make(chan entity.ChangeEvent, _bufferSize)
	s.subs[sessionID] = ch
	return ch
}

func (s *stream) Unsubscribe(ctx context.Context, sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.subs[sessionID]; ok {
		close(ch)
		delete(s.subs, sessionID)
	}
}
