// Package suggestion implements the suggestd business logic.
package suggestion

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/codeassist/suggestd/src/suggestd/gateway/editor"
	"github.com/codeassist/suggestd/src/suggestd/gateway/worker"
	"github.com/codeassist/suggestd/src/suggestd/internal/clock"
	"github.com/codeassist/suggestd/src/suggestd/internal/eventstream"
	"github.com/codeassist/suggestd/src/suggestd/internal/ratelimit"
	"github.com/codeassist/suggestd/src/suggestd/mapper"
	"github.com/codeassist/suggestd/src/suggestd/repository/session"
	"github.com/codeassist/suggestd/src/suggestd/repository/workspace"
	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides this controller into an Fx application.
var Module = fx.Provide(New)

const (
	// Configuration keys
	_idleTimeoutMinutesKey = "idleTimeoutMinutes"
	_preCacheOnOpenKey     = "suggestions.preCacheOnOpen"
)

// Controller orchestrates the business logic for each request.
type Controller interface {
	// LSP Methods defined per protocol.
	Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error)
	Initialized(ctx context.Context, params *protocol.InitializedParams) error
	Shutdown(ctx context.Context) error
	Exit(ctx context.Context) error

	// Document related methods.
	DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error
	DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error
	DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error
	DidChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error

	// Suggestion related methods.
	Start(ctx context.Context) error
	SelectionChanged(ctx context.Context, params *mapper.SelectionChangedParams) error
	FocusChanged(ctx context.Context, params *mapper.FocusChangedParams) error
	TriggerPrefetchDebounced(ctx context.Context, force bool) error
	CancelInFlightTasks(ctx context.Context) error

	// Custom methods for use within this service.
	RequestFullShutdown(ctx context.Context) error
	InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error)
	EndSession(ctx context.Context, uuid uuid.UUID) error
}

// Params are inbound parameters to initialize a new controller.
type Params struct {
	fx.In

	Shutdowner    fx.Shutdowner
	Sessions      session.Repository
	Workspaces    workspace.Repository
	EditorGateway editor.Gateway
	WorkerGateway worker.Gateway
	Stream        eventstream.Stream
	Limiter       ratelimit.Strategy
	Clock         clock.Clock
	Config        config.Provider
	Logger        *zap.SugaredLogger
	Stats         tally.Scope
}

type controller struct {
	sessions      session.Repository
	workspaces    workspace.Repository
	editorGateway editor.Gateway
	stream        eventstream.Stream
	limiter       ratelimit.Strategy
	clock         clock.Clock
	logger        *zap.SugaredLogger
	stats         tally.Scope

	registry  *taskRegistry
	scheduler *scheduler
	pipeline  *pipeline

	// observing maps a session to the generation of its running observation
	// loop; zero means no loop is running.
	observingMu sync.Mutex
	observing   map[uuid.UUID]int
	obsGen      int

	preCacheOnOpen bool

	shutdowner   fx.Shutdowner
	fullShutdown bool
	idleTimer    clock.Timer
	idleTimerMu  sync.Mutex
	idleTimeout  time.Duration
}

// New constructs a new top-level controller for the service.
func New(p Params) (Controller, error) {
	var timeoutMinutesRaw int64
	if err := p.Config.Get(_idleTimeoutMinutesKey).Populate(&timeoutMinutesRaw); err != nil || timeoutMinutesRaw == 0 {
		return nil, fmt.Errorf("unable to get idle timeout from config: %w", err)
	}

	var preCacheOnOpen bool
	if err := p.Config.Get(_preCacheOnOpenKey).Populate(&preCacheOnOpen); err != nil {
		return nil, fmt.Errorf("getting config field %q: %w", _preCacheOnOpenKey, err)
	}

	stats := p.Stats.SubScope("suggestion")
	pl := newPipeline(p.Sessions, p.Workspaces, p.WorkerGateway, p.EditorGateway, p.Logger, stats)
	registry := newTaskRegistry(p.Workspaces, stats)
	sched, err := newScheduler(p.Config, p.Clock, p.Workspaces, registry, pl.run, p.Logger, stats)
	if err != nil {
		return nil, err
	}

	return &controller{
		sessions:       p.Sessions,
		workspaces:     p.Workspaces,
		editorGateway:  p.EditorGateway,
		stream:         p.Stream,
		limiter:        p.Limiter,
		clock:          p.Clock,
		logger:         p.Logger,
		stats:          stats,
		registry:       registry,
		scheduler:      sched,
		pipeline:       pl,
		observing:      make(map[uuid.UUID]int),
		preCacheOnOpen: preCacheOnOpen,
		shutdowner:     p.Shutdowner,
		idleTimeout:    time.Duration(timeoutMinutesRaw) * time.Minute,
	}, nil
}

// RequestFullShutdown will set the controller to treat subsequent Shutdown and Exit requests as requests to exit the entire process.
func (c *controller) RequestFullShutdown(ctx context.Context) error {
	c.fullShutdown = true

	return nil
}

// InitSession creates a new empty session and returns its UUID.
func (c *controller) InitSession(ctx context.Context, conn *jsonrpc2.Conn) (uuid.UUID, error) {
	defer c.refreshIdleTimer(ctx)

	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}

	session := mapper.UUIDToSession(id, conn)
	if err := c.editorGateway.RegisterClient(ctx, id, conn); err != nil {
		return uuid.Nil, err
	}

	if err := c.sessions.Set(ctx, session); err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// EndSession includes any cleanup at the end of the session, during or after the last JSON-RPC request.
func (c *controller) EndSession(ctx context.Context, uuid uuid.UUID) error {
	defer c.refreshIdleTimer(ctx)

	c.scheduler.cancelPending(uuid)
	if err := c.registry.endSession(ctx, uuid); err != nil {
		c.logger.Errorf("cancelling session tasks: %v", err)
	}
	c.stream.Unsubscribe(ctx, uuid)

	c.observingMu.Lock()
	delete(c.observing, uuid)
	c.observingMu.Unlock()

	if err := c.editorGateway.DeregisterClient(ctx, uuid); err != nil {
		c.logger.Error(err)
	}

	return c.sessions.Delete(ctx, uuid)
}

// refreshIdleTimer ensures that the service shuts down after a defined inactivity period with no connections.
// The timer only runs while no connections are active.
func (c *controller) refreshIdleTimer(ctx context.Context) error {
	c.idleTimerMu.Lock()
	defer c.idleTimerMu.Unlock()

	if c.idleTimer != nil {
		c.idleTimer.Stop()
		c.idleTimer = nil
	}

	currentSessions, err := c.sessions.SessionCount(ctx)
	if err != nil {
		return fmt.Errorf("error resetting timeout: %w", err)
	}
	if currentSessions > 0 {
		return nil
	}

	c.idleTimer = c.clock.AfterFunc(c.idleTimeout, func() {
		c.logger.Info("Shutdown signal received.")
		if err := c.shutdowner.Shutdown(); err != nil {
			os.Exit(1)
		}
	})
	return nil
}
