package suggestion

import (
	"context"
	"fmt"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/gateway/editor"
	"github.com/codeassist/suggestd/src/suggestd/gateway/worker"
	"github.com/codeassist/suggestd/src/suggestd/repository/session"
	"github.com/codeassist/suggestd/src/suggestd/repository/workspace"
	tally "github.com/uber-go/tally"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

// pipeline runs one suggestion fetch end to end: resolve the session and
// workspace, call the worker, publish the result to the editor. Absence of
// work (no session, no document, no workspace) and cancellation exit silently;
// only genuine remote failures are logged.
type pipeline struct {
	sessions   session.Repository
	workspaces workspace.Repository
	worker     worker.Gateway
	editor     editor.Gateway
	logger     *zap.SugaredLogger
	stats      tally.Scope
}

func newPipeline(
	sessions session.Repository,
	workspaces workspace.Repository,
	workerGateway worker.Gateway,
	editorGateway editor.Gateway,
	logger *zap.SugaredLogger,
	stats tally.Scope,
) *pipeline {
	return &pipeline{
		sessions:   sessions,
		workspaces: workspaces,
		worker:     workerGateway,
		editor:     editorGateway,
		logger:     logger,
		stats:      stats.SubScope("pipeline"),
	}
}

func (p *pipeline) run(ctx context.Context, req entity.FetchRequest) {
	if ctx.Err() != nil {
		p.stats.Counter("cancelled").Inc(1)
		return
	}

	sess, err := p.sessions.Get(ctx, req.SessionUUID)
	if err != nil {
		p.stats.Counter("no_session").Inc(1)
		return
	}

	doc := req.Document
	if doc == "" {
		doc = sess.ActiveDocument
	}
	if doc == "" {
		p.stats.Counter("no_document").Inc(1)
		return
	}

	ws, filespace, err := p.workspaces.Resolve(ctx, doc)
	if err != nil {
		p.stats.Counter("no_workspace").Inc(1)
		return
	}

	if ctx.Err() != nil {
		p.stats.Counter("cancelled").Inc(1)
		return
	}

	// The cancel func is tracked per workspace so that fan-out cancellation
	// can reach this call even without the session's task context.
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	release, err := p.workspaces.TrackCall(ctx, ws.Root, cancel)
	if err != nil {
		p.stats.Counter("no_workspace").Inc(1)
		return
	}
	defer release()

	req.Document = doc
	suggestions, err := p.worker.FetchSuggestions(fetchCtx, req, filespace)
	if fetchCtx.Err() != nil {
		p.stats.Counter("cancelled").Inc(1)
		return
	}
	if err != nil {
		p.stats.Counter("fetch_errors").Inc(1)
		p.logger.Errorf("fetching suggestions for %q: %v", doc, err)
		if logErr := p.editor.LogMessage(ctx, &protocol.LogMessageParams{
			Type:    protocol.MessageTypeWarning,
			Message: fmt.Sprintf("suggestd: suggestion fetch failed: %v", err),
		}); logErr != nil {
			p.logger.Debugf("notifying editor of fetch failure: %v", logErr)
		}
		return
	}

	// Cancellation between the fetch completing and publication still wins;
	// a cancelled pipeline never delivers a result.
	if ctx.Err() != nil {
		p.stats.Counter("cancelled").Inc(1)
		return
	}

	if err := p.editor.PublishSuggestions(ctx, &editor.SuggestionsParams{
		URI:         protocol.DocumentURI(doc),
		Suggestions: suggestions,
	}); err != nil {
		p.logger.Warnf("publishing suggestions for %q: %v", doc, err)
		return
	}
	p.stats.Counter("published").Inc(1)
}
