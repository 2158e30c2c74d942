package suggestion

import (
	"context"
	"fmt"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/mapper"
	"github.com/gofrs/uuid"
	"go.lsp.dev/uri"
)

// Start begins the session's observation loop. Safe to call repeatedly; calls
// after the first are no-ops until the loop has been torn down.
func (c *controller) Start(ctx context.Context) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	c.startObservation(ctx, s.UUID, true)
	return nil
}

// SelectionChanged emits a change event for a cursor or selection move.
func (c *controller) SelectionChanged(ctx context.Context, params *mapper.SelectionChangedParams) error {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return err
	}

	c.stream.Publish(ctx, entity.ChangeEvent{
		SessionUUID: id,
		Kind:        entity.ChangeEventSelectionChanged,
		Document:    uri.URI(params.TextDocument.URI),
		ReceivedAt:  c.clock.Now(),
	})
	return nil
}

// FocusChanged hands the session over to a different document. All work bound
// to the previous document is cancelled before the new document becomes
// active, so a stale fetch can never publish against the new focus.
func (c *controller) FocusChanged(ctx context.Context, params *mapper.FocusChangedParams) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	c.scheduler.cancelPending(s.UUID)
	if err := c.registry.cancelAll(ctx, s.UUID); err != nil {
		c.logger.Warnf("cancelling tasks on focus change: %v", err)
	}
	c.stream.Unsubscribe(ctx, s.UUID)

	s.ActiveDocument = uri.URI(params.TextDocument.URI)
	if err := c.sessions.Set(ctx, s); err != nil {
		return fmt.Errorf("setting updated session state: %w", err)
	}

	c.startObservation(ctx, s.UUID, false)
	return nil
}

// TriggerPrefetchDebounced requests a fetch for the session's active document
// through the debounce scheduler. A session without an active document is
// silently a no-op.
func (c *controller) TriggerPrefetchDebounced(ctx context.Context, force bool) error {
	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("getting session from context: %w", err)
	}

	if s.ActiveDocument == "" {
		c.stats.Counter("trigger_without_document").Inc(1)
		return nil
	}

	c.scheduler.triggerDebounced(s.UUID, s.ActiveDocument, force)
	return nil
}

// CancelInFlightTasks drops the session's pending fetch timer, cancels its
// running pipeline and fans cancellation out to every workspace's in-flight
// remote calls. The observation loop keeps running.
func (c *controller) CancelInFlightTasks(ctx context.Context) error {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return err
	}

	c.scheduler.cancelPending(id)
	return c.registry.cancelPrefetch(ctx, id)
}

// startObservation subscribes the session to the change-event stream and
// consumes it through the rate limiter, scheduling a debounced fetch per
// surviving event. The loop ends when its task context is cancelled or the
// subscription is closed. With onlyIfIdle set, a session already under
// observation is left alone; otherwise the running loop is replaced.
func (c *controller) startObservation(ctx context.Context, sessionID uuid.UUID, onlyIfIdle bool) {
	c.observingMu.Lock()
	if onlyIfIdle && c.observing[sessionID] != 0 {
		c.observingMu.Unlock()
		return
	}
	c.obsGen++
	gen := c.obsGen
	c.observing[sessionID] = gen
	c.observingMu.Unlock()

	obsCtx, finish := c.registry.begin(sessionID, taskObservation)
	events := c.stream.Subscribe(ctx, sessionID)
	limited := c.limiter.Wrap(events)

	go func() {
		defer finish()
		defer func() {
			// A replaced loop must not clear its successor's registration.
			c.observingMu.Lock()
			if c.observing[sessionID] == gen {
				delete(c.observing, sessionID)
			}
			c.observingMu.Unlock()
		}()

		for {
			select {
			case <-obsCtx.Done():
				return
			case ev, ok := <-limited:
				if !ok {
					return
				}
				c.scheduler.triggerDebounced(sessionID, ev.Document, false)
			}
		}
	}()
}
