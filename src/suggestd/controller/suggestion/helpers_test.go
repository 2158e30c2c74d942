package suggestion

import (
	"context"
	"strings"
	"sync"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/gateway/editor"
	"github.com/codeassist/suggestd/src/suggestd/internal/errors"
	"github.com/gofrs/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// fakeWorkspaces is an in-memory workspace.Repository recording cancellation
// fan-out calls.
type fakeWorkspaces struct {
	mu             sync.Mutex
	enabled        map[string]bool
	cacheGenerated map[string]bool
	inFlight       map[string][]context.CancelFunc
	cancelAllCalls int
	resolveErr     error
}

func newFakeWorkspaces() *fakeWorkspaces {
	return &fakeWorkspaces{
		enabled:        make(map[string]bool),
		cacheGenerated: make(map[string]bool),
		inFlight:       make(map[string][]context.CancelFunc),
	}
}

func (f *fakeWorkspaces) Add(ctx context.Context, root string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.enabled[root]; !ok {
		f.enabled[root] = false
	}
	return nil
}

func (f *fakeWorkspaces) Remove(ctx context.Context, root string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.enabled, root)
	return nil
}

func (f *fakeWorkspaces) Roots(ctx context.Context) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	roots := make([]string, 0, len(f.enabled))
	for root := range f.enabled {
		roots = append(roots, root)
	}
	return roots
}

func (f *fakeWorkspaces) setEnabled(root string, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[root] = enabled
}

func (f *fakeWorkspaces) Resolve(ctx context.Context, doc uri.URI) (*entity.Workspace, *entity.Filespace, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.resolveErr != nil {
		return nil, nil, f.resolveErr
	}
	path := doc.Filename()
	for root, enabled := range f.enabled {
		if strings.HasPrefix(path, root) {
			return &entity.Workspace{
					Root:               root,
					SuggestionsEnabled: enabled,
					CacheGenerated:     f.cacheGenerated[root],
				}, &entity.Filespace{
					Document:     doc,
					RelativePath: strings.TrimPrefix(path, root+"/"),
				}, nil
		}
	}
	return nil, nil, &errors.WorkspaceNotFoundError{Document: doc}
}

func (f *fakeWorkspaces) SuggestionsEnabled(ctx context.Context, root string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	enabled, ok := f.enabled[root]
	if !ok {
		return false, errors.New("workspace not registered")
	}
	return enabled, nil
}

func (f *fakeWorkspaces) TrackCall(ctx context.Context, root string, cancel context.CancelFunc) (func(), error) {
	f.mu.Lock()
	f.inFlight[root] = append(f.inFlight[root], cancel)
	f.mu.Unlock()
	return func() {}, nil
}

func (f *fakeWorkspaces) CancelInFlight(ctx context.Context, root string) error {
	f.mu.Lock()
	cancels := f.inFlight[root]
	f.inFlight[root] = nil
	f.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

func (f *fakeWorkspaces) CancelAllInFlight(ctx context.Context) error {
	f.mu.Lock()
	f.cancelAllCalls++
	roots := make([]string, 0, len(f.inFlight))
	for root := range f.inFlight {
		roots = append(roots, root)
	}
	f.mu.Unlock()

	for _, root := range roots {
		f.CancelInFlight(ctx, root)
	}
	return nil
}

func (f *fakeWorkspaces) cancelAllCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelAllCalls
}

func (f *fakeWorkspaces) NotifyContentChanged(ctx context.Context, doc uri.URI, content string) (bool, error) {
	return true, nil
}

func (f *fakeWorkspaces) CacheGenerated(ctx context.Context, root string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cacheGenerated[root], nil
}

func (f *fakeWorkspaces) SetCacheGenerated(ctx context.Context, root string, generated bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cacheGenerated[root] = generated
	return nil
}

// fakeWorkerGateway returns canned suggestions, or defers to fetchFunc if set.
type fakeWorkerGateway struct {
	mu        sync.Mutex
	calls     int
	fetchFunc func(ctx context.Context, req entity.FetchRequest, filespace *entity.Filespace) ([]entity.Suggestion, error)
}

func (f *fakeWorkerGateway) FetchSuggestions(ctx context.Context, req entity.FetchRequest, filespace *entity.Filespace) ([]entity.Suggestion, error) {
	f.mu.Lock()
	f.calls++
	fetch := f.fetchFunc
	f.mu.Unlock()

	if fetch != nil {
		return fetch(ctx, req, filespace)
	}
	return []entity.Suggestion{{ID: "s1", Text: "suggestion", Score: 0.9}}, nil
}

func (f *fakeWorkerGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEditorGateway records outbound notifications.
type fakeEditorGateway struct {
	mu          sync.Mutex
	registered  []uuid.UUID
	published   []*editor.SuggestionsParams
	logMessages []*protocol.LogMessageParams
}

func (f *fakeEditorGateway) RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, id)
	return nil
}

func (f *fakeEditorGateway) DeregisterClient(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, registered := range f.registered {
		if registered == id {
			f.registered = append(f.registered[:i], f.registered[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeEditorGateway) PublishSuggestions(ctx context.Context, params *editor.SuggestionsParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, params)
	return nil
}

func (f *fakeEditorGateway) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logMessages = append(f.logMessages, params)
	return nil
}

func (f *fakeEditorGateway) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeEditorGateway) logMessageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.logMessages)
}
