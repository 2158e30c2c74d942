// Package workspace keeps the registry of known workspace roots: per-workspace
// suggestion settings, in-flight remote-call cancellation, and the content
// cache updated by editing-changed notifications.
package workspace

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/internal/errors"
	"github.com/codeassist/suggestd/src/suggestd/internal/fs"
	"github.com/fsnotify/fsnotify"
	"github.com/sergi/go-diff/diffmatchpatch"
	tally "github.com/uber-go/tally"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	_configKeySettingsFileName = "workspaces.settingsFileName"
	_defaultSettingsFileName   = ".suggestd.yaml"
)

// Module is the Fx module for this package.
var Module = fx.Provide(New)

// Repository tracks all registered workspace roots.
//
// Mutation of the root set (Add/Remove) is owned by a single external caller,
// the workspace-folders handler. Everything else only reads and iterates the
// set concurrently.
type Repository interface {
	// Add registers a workspace root and begins watching its settings file.
	Add(ctx context.Context, root string) error
	// Remove deregisters a workspace root.
	Remove(ctx context.Context, root string) error
	// Roots returns a snapshot of all registered roots.
	Roots(ctx context.Context) []string

	// Resolve maps a document to its containing workspace, by longest matching
	// root. Returns a WorkspaceNotFoundError if no root contains the document.
	Resolve(ctx context.Context, doc uri.URI) (*entity.Workspace, *entity.Filespace, error)

	// SuggestionsEnabled re-reads the workspace's settings file and returns
	// the per-workspace suggestion flag. Callers rely on this being fresh at
	// the time of the call, not cached from an earlier schedule.
	SuggestionsEnabled(ctx context.Context, root string) (bool, error)

	// TrackCall registers an in-flight remote call's cancel func under the
	// workspace. The returned release func deregisters it once the call ends.
	TrackCall(ctx context.Context, root string, cancel context.CancelFunc) (release func(), err error)
	// CancelInFlight cancels all in-flight remote calls tracked under the root.
	CancelInFlight(ctx context.Context, root string) error
	// CancelAllInFlight fans cancellation out to every registered workspace
	// concurrently and waits for all of them.
	CancelAllInFlight(ctx context.Context) error

	// NotifyContentChanged updates the content cache for the document.
	// Returns false when the new content does not differ from the cached
	// content, in which case the update is dropped.
	NotifyContentChanged(ctx context.Context, doc uri.URI, content string) (bool, error)

	// CacheGenerated reports the workspace's pre-cache sentinel.
	CacheGenerated(ctx context.Context, root string) (bool, error)
	// SetCacheGenerated sets or clears the pre-cache sentinel. Clearing it is
	// the only way to re-arm the single pre-cache attempt.
	SetCacheGenerated(ctx context.Context, root string, generated bool) error
}

// Params define values to be used by the repository.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
	FS        fs.SuggestdFS
}

// settingsFile is the on-disk per-workspace settings schema.
type settingsFile struct {
	Suggestions struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"suggestions"`
}

type workspaceState struct {
	mu             sync.Mutex
	root           string
	enabled        bool
	cacheGenerated bool
	nextCallID     uint64
	inFlight       map[uint64]context.CancelFunc
	content        map[uri.URI]string
}

type repository struct {
	mu               sync.RWMutex
	workspaces       map[string]*workspaceState
	settingsFileName string

	watcher *fsnotify.Watcher
	closeCh chan struct{}

	fs     fs.SuggestdFS
	logger *zap.SugaredLogger
	stats  tally.Scope
	differ *diffmatchpatch.DiffMatchPatch
}

// New returns a Repository backed by an in-memory workspace table and a
// settings-file watcher.
func New(p Params) (Repository, error) {
	r := &repository{
		workspaces: make(map[string]*workspaceState),
		closeCh:    make(chan struct{}),
		fs:         p.FS,
		logger:     p.Logger,
		stats:      p.Stats.SubScope("workspaces"),
		differ:     diffmatchpatch.New(),
	}

	if err := p.Config.Get(_configKeySettingsFileName).Populate(&r.settingsFileName); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeySettingsFileName, err)
	}
	if r.settingsFileName == "" {
		r.settingsFileName = _defaultSettingsFileName
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		// Settings are still re-read on demand, only change notifications are lost.
		r.logger.Warnf("settings watcher unavailable: %v", err)
	} else {
		r.watcher = watcher
		go r.watchSettings()
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			close(r.closeCh)
			if r.watcher != nil {
				return r.watcher.Close()
			}
			return nil
		},
	})

	return r, nil
}

func (r *repository) Add(ctx context.Context, root string) error {
	root = filepath.Clean(root)

	r.mu.Lock()
	if _, ok := r.workspaces[root]; ok {
		r.mu.Unlock()
		return nil
	}

	enabled, err := r.readSettings(root)
	if err != nil {
		r.logger.Warnf("reading settings for workspace %q: %v", root, err)
	}
	r.workspaces[root] = &workspaceState{
		root:     root,
		enabled:  enabled,
		inFlight: make(map[uint64]context.CancelFunc),
		content:  make(map[uri.URI]string),
	}
	r.stats.Gauge("registered").Update(float64(len(r.workspaces)))
	r.mu.Unlock()

	if r.watcher != nil {
		if err := r.watcher.Add(root); err != nil {
			r.logger.Warnf("watching workspace %q: %v", root, err)
		}
	}
	return nil
}

func (r *repository) Remove(ctx context.Context, root string) error {
	root = filepath.Clean(root)

	r.mu.Lock()
	_, ok := r.workspaces[root]
	delete(r.workspaces, root)
	r.stats.Gauge("registered").Update(float64(len(r.workspaces)))
	r.mu.Unlock()

	if ok && r.watcher != nil {
		if err := r.watcher.Remove(root); err != nil {
			r.logger.Debugf("unwatching workspace %q: %v", root, err)
		}
	}
	return nil
}

func (r *repository) Roots(ctx context.Context) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roots := make([]string, 0, len(r.workspaces))
	for root := range r.workspaces {
		roots = append(roots, root)
	}
	return roots
}

func (r *repository) Resolve(ctx context.Context, doc uri.URI) (*entity.Workspace, *entity.Filespace, error) {
	match, _, err := r.resolveState(doc)
	if err != nil {
		return nil, nil, err
	}

	match.mu.Lock()
	defer match.mu.Unlock()

	rel, err := filepath.Rel(match.root, doc.Filename())
	if err != nil {
		rel = doc.Filename()
	}
	return &entity.Workspace{
			Root:               match.root,
			SuggestionsEnabled: match.enabled,
			CacheGenerated:     match.cacheGenerated,
		}, &entity.Filespace{
			Document:     doc,
			RelativePath: rel,
		}, nil
}

func (r *repository) SuggestionsEnabled(ctx context.Context, root string) (bool, error) {
	ws, err := r.get(root)
	if err != nil {
		return false, err
	}

	enabled, err := r.readSettings(root)
	if err != nil {
		// Fall back to the last value picked up by the watcher.
		ws.mu.Lock()
		defer ws.mu.Unlock()
		return ws.enabled, nil
	}

	ws.mu.Lock()
	ws.enabled = enabled
	ws.mu.Unlock()
	return enabled, nil
}

func (r *repository) TrackCall(ctx context.Context, root string, cancel context.CancelFunc) (func(), error) {
	ws, err := r.get(root)
	if err != nil {
		return nil, err
	}

	ws.mu.Lock()
	ws.nextCallID++
	id := ws.nextCallID
	ws.inFlight[id] = cancel
	ws.mu.Unlock()

	return func() {
		ws.mu.Lock()
		delete(ws.inFlight, id)
		ws.mu.Unlock()
	}, nil
}

func (r *repository) CancelInFlight(ctx context.Context, root string) error {
	ws, err := r.get(root)
	if err != nil {
		return err
	}

	ws.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(ws.inFlight))
	for id, cancel := range ws.inFlight {
		cancels = append(cancels, cancel)
		delete(ws.inFlight, id)
	}
	ws.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	if len(cancels) > 0 {
		r.stats.Counter("cancelled_in_flight").Inc(int64(len(cancels)))
	}
	return nil
}

func (r *repository) CancelAllInFlight(ctx context.Context) error {
	roots := r.Roots(ctx)

	var wg sync.WaitGroup
	errs := make([]error, len(roots))
	for i, root := range roots {
		wg.Add(1)
		go func(i int, root string) {
			defer wg.Done()
			errs[i] = r.CancelInFlight(ctx, root)
		}(i, root)
	}
	wg.Wait()

	return multierr.Combine(errs...)
}

func (r *repository) NotifyContentChanged(ctx context.Context, doc uri.URI, content string) (bool, error) {
	ws, _, err := r.resolveState(doc)
	if err != nil {
		return false, err
	}

	ws.mu.Lock()
	defer ws.mu.Unlock()

	if cached, ok := ws.content[doc]; ok {
		diffs := r.differ.DiffMain(cached, content, false)
		if !hasChanges(diffs) {
			r.stats.Counter("content_unchanged").Inc(1)
			return false, nil
		}
	}
	ws.content[doc] = content
	r.stats.Counter("content_updated").Inc(1)
	return true, nil
}

func (r *repository) CacheGenerated(ctx context.Context, root string) (bool, error) {
	ws, err := r.get(root)
	if err != nil {
		return false, err
	}
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.cacheGenerated, nil
}

func (r *repository) SetCacheGenerated(ctx context.Context, root string, generated bool) error {
	ws, err := r.get(root)
	if err != nil {
		return err
	}
	ws.mu.Lock()
	ws.cacheGenerated = generated
	ws.mu.Unlock()
	return nil
}

func (r *repository) get(root string) (*workspaceState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ws, ok := r.workspaces[filepath.Clean(root)]
	if !ok {
		return nil, fmt.Errorf("workspace %q is not registered", root)
	}
	return ws, nil
}

func (r *repository) resolveState(doc uri.URI) (*workspaceState, string, error) {
	path := doc.Filename()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var match *workspaceState
	for root, ws := range r.workspaces {
		if !strings.HasPrefix(path, root+string(filepath.Separator)) && path != root {
			continue
		}
		if match == nil || len(ws.root) > len(match.root) {
			match = ws
		}
	}
	if match == nil {
		return nil, "", &errors.WorkspaceNotFoundError{Document: doc}
	}
	return match, match.root, nil
}

// readSettings loads the workspace settings file. A missing file or a file
// without the flag means the workspace has not opted in.
func (r *repository) readSettings(root string) (bool, error) {
	path := filepath.Join(root, r.settingsFileName)

	exists, err := r.fs.FileExists(path)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	raw, err := r.fs.ReadFile(path)
	if err != nil {
		return false, err
	}

	var settings settingsFile
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return false, fmt.Errorf("parsing %q: %w", path, err)
	}
	if settings.Suggestions.Enabled == nil {
		return false, nil
	}
	return *settings.Suggestions.Enabled, nil
}

// watchSettings picks up settings-file edits so the cached flag stays close to
// the on-disk value between gate checks.
func (r *repository) watchSettings() {
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if filepath.Base(event.Name) != r.settingsFileName {
				continue
			}
			root := filepath.Dir(event.Name)
			ws, err := r.get(root)
			if err != nil {
				continue
			}
			enabled, err := r.readSettings(root)
			if err != nil {
				r.logger.Warnf("reloading settings for workspace %q: %v", root, err)
				continue
			}
			ws.mu.Lock()
			ws.enabled = enabled
			ws.mu.Unlock()
			r.stats.Counter("settings_reloaded").Inc(1)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warnf("settings watcher failure: %v", err)

		case <-r.closeCh:
			return
		}
	}
}

func hasChanges(diffs []diffmatchpatch.Diff) bool {
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			return true
		}
	}
	return false
}
