package suggestion

import (
	"context"
	"fmt"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/gofrs/uuid"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// DidOpen marks the opened document as the session's active document and
// starts observation if it is not already running.
func (c *controller) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	doc := uri.URI(params.TextDocument.URI)
	s.ActiveDocument = doc
	if err := c.sessions.Set(ctx, s); err != nil {
		return fmt.Errorf("setting updated session state: %w", err)
	}

	if err := c.Start(ctx); err != nil {
		return err
	}

	if _, err := c.workspaces.NotifyContentChanged(ctx, doc, params.TextDocument.Text); err != nil {
		c.logger.Debugf("recording opened document content: %v", err)
	}

	c.maybePreCache(ctx, s.UUID, doc)
	return nil
}

// DidChange records the new document content and emits a change event for the
// observation loop. Edits that do not alter content are dropped here.
func (c *controller) DidChange(ctx context.Context, params *protocol.DidChangeTextDocumentParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	doc := uri.URI(params.TextDocument.URI)
	changed := true
	if text, ok := fullContentChange(params); ok {
		changed, err = c.workspaces.NotifyContentChanged(ctx, doc, text)
		if err != nil {
			c.logger.Debugf("diffing document content: %v", err)
			changed = true
		}
	}
	if !changed {
		c.stats.Counter("unchanged_edits").Inc(1)
		return nil
	}

	c.stream.Publish(ctx, entity.ChangeEvent{
		SessionUUID: s.UUID,
		Kind:        entity.ChangeEventValueChanged,
		Document:    doc,
		ReceivedAt:  c.clock.Now(),
	})
	return nil
}

// DidClose clears the active document if the closed document was it, and
// drops any fetch still pending for the session.
func (c *controller) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	if uri.URI(params.TextDocument.URI) != s.ActiveDocument {
		return nil
	}

	c.scheduler.cancelPending(s.UUID)
	if err := c.registry.cancelPrefetch(ctx, s.UUID); err != nil {
		c.logger.Warnf("cancelling in-flight suggestion work: %v", err)
	}

	s.ActiveDocument = ""
	return c.sessions.Set(ctx, s)
}

// DidChangeWorkspaceFolders registers added folders and removes departed ones.
func (c *controller) DidChangeWorkspaceFolders(ctx context.Context, params *protocol.DidChangeWorkspaceFoldersParams) error {
	for _, folder := range params.Event.Added {
		if err := c.workspaces.Add(ctx, uri.New(folder.URI).Filename()); err != nil {
			c.logger.Warnf("registering workspace %q: %v", folder.URI, err)
		}
	}
	for _, folder := range params.Event.Removed {
		if err := c.workspaces.Remove(ctx, uri.New(folder.URI).Filename()); err != nil {
			c.logger.Warnf("removing workspace %q: %v", folder.URI, err)
		}
	}
	return nil
}

// maybePreCache forces one warm-up fetch for the document's workspace. The
// attempt is recorded before it runs, so a failed warm-up is never retried.
func (c *controller) maybePreCache(ctx context.Context, sessionID uuid.UUID, doc uri.URI) {
	if !c.preCacheOnOpen {
		return
	}

	ws, _, err := c.workspaces.Resolve(ctx, doc)
	if err != nil {
		return
	}
	generated, err := c.workspaces.CacheGenerated(ctx, ws.Root)
	if err != nil || generated {
		return
	}
	if err := c.workspaces.SetCacheGenerated(ctx, ws.Root, true); err != nil {
		c.logger.Warnf("recording cache warm-up for %q: %v", ws.Root, err)
		return
	}

	c.stats.Counter("pre_cache_attempts").Inc(1)
	c.scheduler.triggerDebounced(sessionID, doc, true)
}

// fullContentChange returns the document text carried by the change set.
// Sync is negotiated as full-document, so each change event holds the whole
// text and the last one wins.
func fullContentChange(params *protocol.DidChangeTextDocumentParams) (string, bool) {
	if len(params.ContentChanges) == 0 {
		return "", false
	}
	return params.ContentChanges[len(params.ContentChanges)-1].Text, true
}
