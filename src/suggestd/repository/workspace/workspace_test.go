package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/codeassist/suggestd/src/suggestd/internal/errors"
	"github.com/codeassist/suggestd/src/suggestd/internal/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func newTestRepository(t *testing.T) Repository {
	t.Helper()

	cfg, err := config.NewStaticProvider(map[string]interface{}{
		"workspaces": map[string]interface{}{
			"settingsFileName": ".suggestd.yaml",
		},
	})
	require.NoError(t, err)

	lc := fxtest.NewLifecycle(t)
	repo, err := New(Params{
		Config:    cfg,
		Lifecycle: lc,
		Logger:    zap.NewNop().Sugar(),
		Stats:     tally.NewTestScope("testing", make(map[string]string, 0)),
		FS:        fs.New(),
	})
	require.NoError(t, err)

	lc.RequireStart()
	t.Cleanup(func() { lc.RequireStop() })
	return repo
}

func writeSettings(t *testing.T, root, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".suggestd.yaml"), []byte(content), 0644))
}

func TestAddRemoveRoots(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	root := t.TempDir()

	require.NoError(t, repo.Add(ctx, root))
	require.NoError(t, repo.Add(ctx, root), "adding twice should be a no-op")
	assert.Equal(t, []string{root}, repo.Roots(ctx))

	require.NoError(t, repo.Remove(ctx, root))
	assert.Empty(t, repo.Roots(ctx))
}

func TestResolve(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	outer := t.TempDir()
	inner := filepath.Join(outer, "nested")
	require.NoError(t, os.MkdirAll(inner, 0755))

	require.NoError(t, repo.Add(ctx, outer))
	require.NoError(t, repo.Add(ctx, inner))

	t.Run("longest matching root wins", func(t *testing.T) {
		ws, filespace, err := repo.Resolve(ctx, uri.File(filepath.Join(inner, "main.go")))
		require.NoError(t, err)
		assert.Equal(t, inner, ws.Root)
		assert.Equal(t, "main.go", filespace.RelativePath)
	})

	t.Run("outer root still matches its own files", func(t *testing.T) {
		ws, filespace, err := repo.Resolve(ctx, uri.File(filepath.Join(outer, "util.go")))
		require.NoError(t, err)
		assert.Equal(t, outer, ws.Root)
		assert.Equal(t, "util.go", filespace.RelativePath)
	})

	t.Run("document outside all roots", func(t *testing.T) {
		_, _, err := repo.Resolve(ctx, uri.File("/elsewhere/main.go"))
		require.Error(t, err)
		var nf *errors.WorkspaceNotFoundError
		assert.ErrorAs(t, err, &nf)
	})
}

func TestSuggestionsEnabled(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, repo.Add(ctx, root))

	t.Run("missing settings file means disabled", func(t *testing.T) {
		enabled, err := repo.SuggestionsEnabled(ctx, root)
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("flag is read fresh on every call", func(t *testing.T) {
		writeSettings(t, root, "suggestions:\n  enabled: true\n")
		enabled, err := repo.SuggestionsEnabled(ctx, root)
		require.NoError(t, err)
		assert.True(t, enabled)

		// No watcher round trip needed; the change is visible immediately.
		writeSettings(t, root, "suggestions:\n  enabled: false\n")
		enabled, err = repo.SuggestionsEnabled(ctx, root)
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("file without the flag means disabled", func(t *testing.T) {
		writeSettings(t, root, "suggestions: {}\n")
		enabled, err := repo.SuggestionsEnabled(ctx, root)
		require.NoError(t, err)
		assert.False(t, enabled)
	})

	t.Run("unregistered root fails", func(t *testing.T) {
		_, err := repo.SuggestionsEnabled(ctx, "/unregistered")
		assert.Error(t, err)
	})
}

func TestTrackAndCancelCalls(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, repo.Add(ctx, root))

	t.Run("cancel reaches tracked calls", func(t *testing.T) {
		callCtx, cancel := context.WithCancel(ctx)
		release, err := repo.TrackCall(ctx, root, cancel)
		require.NoError(t, err)
		defer release()

		require.NoError(t, repo.CancelInFlight(ctx, root))
		assert.ErrorIs(t, callCtx.Err(), context.Canceled)
	})

	t.Run("released calls are not cancelled", func(t *testing.T) {
		callCtx, cancel := context.WithCancel(ctx)
		release, err := repo.TrackCall(ctx, root, cancel)
		require.NoError(t, err)
		release()

		require.NoError(t, repo.CancelInFlight(ctx, root))
		assert.NoError(t, callCtx.Err())
		cancel()
	})
}

func TestCancelAllInFlightFansOut(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	rootA := t.TempDir()
	rootB := t.TempDir()
	require.NoError(t, repo.Add(ctx, rootA))
	require.NoError(t, repo.Add(ctx, rootB))

	ctxA, cancelA := context.WithCancel(ctx)
	releaseA, err := repo.TrackCall(ctx, rootA, cancelA)
	require.NoError(t, err)
	defer releaseA()

	ctxB, cancelB := context.WithCancel(ctx)
	releaseB, err := repo.TrackCall(ctx, rootB, cancelB)
	require.NoError(t, err)
	defer releaseB()

	require.NoError(t, repo.CancelAllInFlight(ctx))
	assert.ErrorIs(t, ctxA.Err(), context.Canceled)
	assert.ErrorIs(t, ctxB.Err(), context.Canceled)
}

func TestNotifyContentChanged(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, repo.Add(ctx, root))

	doc := uri.File(filepath.Join(root, "main.go"))

	changed, err := repo.NotifyContentChanged(ctx, doc, "package main\n")
	require.NoError(t, err)
	assert.True(t, changed, "first content is always a change")

	changed, err = repo.NotifyContentChanged(ctx, doc, "package main\n")
	require.NoError(t, err)
	assert.False(t, changed, "identical content is dropped")

	changed, err = repo.NotifyContentChanged(ctx, doc, "package main\n\nfunc main() {}\n")
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestCacheGeneratedSentinel(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, repo.Add(ctx, root))

	generated, err := repo.CacheGenerated(ctx, root)
	require.NoError(t, err)
	assert.False(t, generated)

	require.NoError(t, repo.SetCacheGenerated(ctx, root, true))
	generated, err = repo.CacheGenerated(ctx, root)
	require.NoError(t, err)
	assert.True(t, generated)

	// Clearing re-arms the single warm-up attempt.
	require.NoError(t, repo.SetCacheGenerated(ctx, root, false))
	generated, err = repo.CacheGenerated(ctx, root)
	require.NoError(t, err)
	assert.False(t, generated)
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
