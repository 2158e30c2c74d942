package editor

import (
	"context"
	"sync"
	"testing"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// fakeConn records notifications sent through a jsonrpc2.Conn.
type fakeConn struct {
	mu            sync.Mutex
	notifications []string
}

var _ jsonrpc2.Conn = (*fakeConn)(nil)

func (f *fakeConn) Call(ctx context.Context, method string, params, result interface{}) (jsonrpc2.ID, error) {
	return jsonrpc2.NewNumberID(0), nil
}

func (f *fakeConn) Notify(ctx context.Context, method string, params interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, method)
	return nil
}

func (f *fakeConn) Go(ctx context.Context, handler jsonrpc2.Handler) {}
func (f *fakeConn) Close() error                                     { return nil }
func (f *fakeConn) Done() <-chan struct{}                            { return nil }
func (f *fakeConn) Err() error                                       { return nil }

func (f *fakeConn) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notifications...)
}

func registerFakeConn(t *testing.T, g Gateway) (uuid.UUID, context.Context, *fakeConn) {
	t.Helper()
	id := uuid.Must(uuid.NewV4())
	fake := &fakeConn{}
	var conn jsonrpc2.Conn = fake
	require.NoError(t, g.RegisterClient(context.Background(), id, &conn))
	ctx := context.WithValue(context.Background(), entity.SessionContextKey, id)
	return id, ctx, fake
}

func TestPublishSuggestions(t *testing.T) {
	g := New(zap.NewNop().Sugar())
	_, ctx, fake := registerFakeConn(t, g)

	err := g.PublishSuggestions(ctx, &SuggestionsParams{
		URI:         "file:///ws/main.go",
		Suggestions: []entity.Suggestion{{ID: "s1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{MethodPublishSuggestions}, fake.methods())
}

func TestLogMessage(t *testing.T) {
	g := New(zap.NewNop().Sugar())
	_, ctx, fake := registerFakeConn(t, g)

	err := g.LogMessage(ctx, &protocol.LogMessageParams{
		Type:    protocol.MessageTypeWarning,
		Message: "something happened",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{protocol.MethodWindowLogMessage}, fake.methods())
}

func TestNotifyWithoutSessionInContext(t *testing.T) {
	g := New(zap.NewNop().Sugar())
	registerFakeConn(t, g)

	err := g.PublishSuggestions(context.Background(), &SuggestionsParams{})
	assert.Error(t, err)
}

func TestNotifyUnregisteredSession(t *testing.T) {
	g := New(zap.NewNop().Sugar())

	ctx := context.WithValue(context.Background(), entity.SessionContextKey, uuid.Must(uuid.NewV4()))
	err := g.PublishSuggestions(ctx, &SuggestionsParams{})
	assert.Error(t, err)
}

func TestDeregisterClient(t *testing.T) {
	g := New(zap.NewNop().Sugar())
	id, ctx, _ := registerFakeConn(t, g)

	require.NoError(t, g.DeregisterClient(context.Background(), id))
	err := g.PublishSuggestions(ctx, &SuggestionsParams{})
	assert.Error(t, err, "a deregistered session no longer routes")
}
