package eventstream

import (
	"context"
	"testing"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func newTestStream() Stream {
	return New(Params{
		Logger: zap.NewNop().Sugar(),
		Stats:  tally.NewTestScope("testing", make(map[string]string, 0)),
	})
}

func TestPublishSubscribe(t *testing.T) {
	s := newTestStream()
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	events := s.Subscribe(ctx, id)
	s.Publish(ctx, entity.ChangeEvent{
		SessionUUID: id,
		Kind:        entity.ChangeEventValueChanged,
		Document:    "file:///workspace/main.go",
	})

	ev := <-events
	assert.Equal(t, id, ev.SessionUUID)
	assert.Equal(t, entity.ChangeEventValueChanged, ev.Kind)

	s.Unsubscribe(ctx, id)
	_, open := <-events
	assert.False(t, open)
}

func TestPublishWithoutSubscriber(t *testing.T) {
	s := newTestStream()

	// No subscription exists, the event is dropped without blocking.
	s.Publish(context.Background(), entity.ChangeEvent{
		SessionUUID: uuid.Must(uuid.NewV4()),
	})
}

func TestResubscribeClosesPrevious(t *testing.T) {
	s := newTestStream()
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	first := s.Subscribe(ctx, id)
	second := s.Subscribe(ctx, id)

	_, open := <-first
	require.False(t, open, "first subscription should be closed on replacement")

	s.Publish(ctx, entity.ChangeEvent{SessionUUID: id})
	ev := <-second
	assert.Equal(t, id, ev.SessionUUID)

	s.Unsubscribe(ctx, id)
}

func TestPublishNeverBlocksWhenSaturated(t *testing.T) {
	s := newTestStream()
	ctx := context.Background()
	id := uuid.Must(uuid.NewV4())

	events := s.Subscribe(ctx, id)
	for i := 0; i < _bufferSize*2; i++ {
		s.Publish(ctx, entity.ChangeEvent{SessionUUID: id})
	}

	// Buffered events remain deliverable, the overflow was dropped.
	for i := 0; i < _bufferSize; i++ {
		<-events
	}
	select {
	case <-events:
		t.Fatal("expected overflow events to be dropped")
	default:
	}

	s.Unsubscribe(ctx, id)
}

func TestUnsubscribeUnknownSession(t *testing.T) {
	s := newTestStream()
	s.Unsubscribe(context.Background(), uuid.Must(uuid.NewV4()))
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
