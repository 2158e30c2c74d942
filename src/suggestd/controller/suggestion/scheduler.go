package suggestion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/internal/clock"
	"github.com/codeassist/suggestd/src/suggestd/repository/workspace"
	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally"
	"go.lsp.dev/uri"
	"go.uber.org/config"
	"go.uber.org/zap"
)

const (
	_configKeyEnabled         = "suggestions.enabled"
	_configKeyDisableOverride = "suggestions.disableGlobalAllowWorkspaceOverride"
	_configKeyDebounceSeconds = "suggestions.debounceSeconds"

	// Debounce delays configured below this floor are raised to it.
	_minDebounceDelay = 150 * time.Millisecond
)

// scheduler owns the single pending-fetch timer per session. Each qualifying
// trigger resets the timer; only silence for the full delay fires a fetch.
type scheduler struct {
	mu     sync.Mutex
	timers map[uuid.UUID]clock.Timer

	delay      time.Duration
	clock      clock.Clock
	config     config.Provider
	workspaces workspace.Repository
	registry   *taskRegistry
	run        func(ctx context.Context, req entity.FetchRequest)
	logger     *zap.SugaredLogger
	stats      tally.Scope
}

func newScheduler(
	cfg config.Provider,
	clk clock.Clock,
	workspaces workspace.Repository,
	registry *taskRegistry,
	run func(ctx context.Context, req entity.FetchRequest),
	logger *zap.SugaredLogger,
	stats tally.Scope,
) (*scheduler, error) {
	var delaySeconds float64
	if err := cfg.Get(_configKeyDebounceSeconds).Populate(&delaySeconds); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _configKeyDebounceSeconds, err)
	}

	delay := time.Duration(delaySeconds * float64(time.Second))
	if delay < _minDebounceDelay {
		delay = _minDebounceDelay
	}

	return &scheduler{
		timers:     make(map[uuid.UUID]clock.Timer),
		delay:      delay,
		clock:      clk,
		config:     cfg,
		workspaces: workspaces,
		registry:   registry,
		run:        run,
		logger:     logger,
		stats:      stats.SubScope("scheduler"),
	}, nil
}

// triggerDebounced schedules a fetch for the document after the debounce
// delay. A previously pending timer for the session is stopped and discarded
// with no side effect; a burst of triggers collapses into one fetch.
func (s *scheduler) triggerDebounced(sessionID uuid.UUID, doc uri.URI, force bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		s.stats.Counter("collapsed").Inc(1)
	}
	s.timers[sessionID] = s.clock.AfterFunc(s.delay, func() {
		s.fire(sessionID, doc, force)
	})
}

// cancelPending stops the session's pending timer, if any. Silent; a timer
// cancelled before firing is indistinguishable from one that never existed.
func (s *scheduler) cancelPending(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[sessionID]; ok {
		t.Stop()
		delete(s.timers, sessionID)
	}
}

func (s *scheduler) fire(sessionID uuid.UUID, doc uri.URI, force bool) {
	s.mu.Lock()
	delete(s.timers, sessionID)
	s.mu.Unlock()

	ctx := context.WithValue(context.Background(), entity.SessionContextKey, sessionID)

	allowed, err := s.gateCheck(ctx, doc)
	if err != nil {
		s.logger.Warnf("suggestion gate check: %v", err)
		return
	}
	if !allowed {
		s.stats.Counter("gated").Inc(1)
		return
	}

	// A new pipeline may only start once the previous one can no longer
	// publish a result.
	if err := s.registry.cancelPrefetch(ctx, sessionID); err != nil {
		s.logger.Warnf("cancelling in-flight suggestion work: %v", err)
	}

	taskCtx, finish := s.registry.begin(sessionID, taskPrefetch)
	defer finish()

	s.stats.Counter("fired").Inc(1)
	s.run(taskCtx, entity.FetchRequest{
		SessionUUID: sessionID,
		Document:    doc,
		TriggeredAt: s.clock.Now(),
		Force:       force,
	})
}

// gateCheck re-reads the suggestion gates at fire time. The per-workspace
// flag in particular is fetched fresh now, not cached from schedule time.
func (s *scheduler) gateCheck(ctx context.Context, doc uri.URI) (bool, error) {
	var enabled bool
	if err := s.config.Get(_configKeyEnabled).Populate(&enabled); err != nil {
		return false, fmt.Errorf("getting config field %q: %w", _configKeyEnabled, err)
	}
	if enabled {
		return true, nil
	}

	var allowOverride bool
	if err := s.config.Get(_configKeyDisableOverride).Populate(&allowOverride); err != nil {
		return false, fmt.Errorf("getting config field %q: %w", _configKeyDisableOverride, err)
	}
	if !allowOverride {
		return false, nil
	}

	ws, _, err := s.workspaces.Resolve(ctx, doc)
	if err != nil {
		// No workspace mapping means nothing to do, not a failure.
		return false, nil
	}
	return s.workspaces.SuggestionsEnabled(ctx, ws.Root)
}
