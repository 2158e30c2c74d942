package suggestion

import (
	"context"
	"sync"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/repository/workspace"
	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally"
)

// taskKind identifies the per-session task slots tracked by the registry.
type taskKind int

const (
	taskObservation taskKind = iota
	taskPrefetch
)

// taskHandle is one cancellable unit of session work.
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// taskRegistry tracks the cancellable tasks owned by each session. The
// registry owns the handles; sessions hold only their UUID back into it, so
// ownership stays unidirectional.
type taskRegistry struct {
	mu         sync.Mutex
	tasks      map[uuid.UUID]map[taskKind]*taskHandle
	workspaces workspace.Repository
	stats      tally.Scope
}

func newTaskRegistry(workspaces workspace.Repository, stats tally.Scope) *taskRegistry {
	return &taskRegistry{
		tasks:      make(map[uuid.UUID]map[taskKind]*taskHandle),
		workspaces: workspaces,
		stats:      stats.SubScope("tasks"),
	}
}

// begin registers a new task of the given kind, cancelling and replacing any
// existing task of the same kind for the session. The returned context
// carries the session UUID and is the task's cancellation boundary; finish
// must be called when the task ends.
func (r *taskRegistry) begin(sessionID uuid.UUID, kind taskKind) (context.Context, func()) {
	// Tasks outlive the request that started them, so they hang off a fresh
	// background context rather than the inbound request context.
	parent := context.WithValue(context.Background(), entity.SessionContextKey, sessionID)
	taskCtx, cancel := context.WithCancel(parent)
	handle := &taskHandle{cancel: cancel, done: make(chan struct{})}

	r.mu.Lock()
	if _, ok := r.tasks[sessionID]; !ok {
		r.tasks[sessionID] = make(map[taskKind]*taskHandle)
	}
	prev := r.tasks[sessionID][kind]
	r.tasks[sessionID][kind] = handle
	r.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}

	var once sync.Once
	finish := func() {
		once.Do(func() {
			cancel()
			close(handle.done)
		})
	}
	return taskCtx, finish
}

// cancelPrefetch synchronously cancels the session's in-flight prefetch task,
// then fans out cancellation of in-flight remote suggestion calls to every
// known workspace and waits for all of them. It must complete before a new
// fetch pipeline starts; that ordering is what keeps at most one pipeline
// owning the outcome for a session.
func (r *taskRegistry) cancelPrefetch(ctx context.Context, sessionID uuid.UUID) error {
	r.cancelKind(sessionID, taskPrefetch)
	return r.workspaces.CancelAllInFlight(ctx)
}

// cancelAll cancels both the observation and prefetch tasks for the session
// and fans out remote-call cancellation. Used on session handoff and teardown.
func (r *taskRegistry) cancelAll(ctx context.Context, sessionID uuid.UUID) error {
	r.cancelKind(sessionID, taskObservation)
	r.cancelKind(sessionID, taskPrefetch)
	return r.workspaces.CancelAllInFlight(ctx)
}

// endSession cancels and forgets all tasks for the session.
func (r *taskRegistry) endSession(ctx context.Context, sessionID uuid.UUID) error {
	err := r.cancelAll(ctx, sessionID)

	r.mu.Lock()
	delete(r.tasks, sessionID)
	r.mu.Unlock()

	return err
}

func (r *taskRegistry) cancelKind(sessionID uuid.UUID, kind taskKind) {
	r.mu.Lock()
	handle := r.tasks[sessionID][kind]
	r.mu.Unlock()

	if handle != nil {
		handle.cancel()
		r.stats.Counter("cancelled").Inc(1)
	}
}
