package suggestd

import (
	"context"

	controller "github.com/codeassist/suggestd/src/suggestd/controller/suggestion"
	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/gofrs/uuid"
	tally "github.com/uber-go/tally"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
)

const (
	// MethodRequestFullShutdown directs the server to shut down on the next JSON-RPC 'exit' method call.
	MethodRequestFullShutdown = "suggestd/requestFullShutdown"

	// MethodSelectionChanged notifies the server that the cursor or selection moved.
	MethodSelectionChanged = "suggestd/selectionChanged"

	// MethodFocusChanged notifies the server that a different document took focus.
	MethodFocusChanged = "suggestd/focusChanged"

	// MethodTriggerPrefetch requests a debounced suggestion fetch for the active document.
	MethodTriggerPrefetch = "suggestd/triggerPrefetch"

	// MethodCancel cancels the session's pending and in-flight suggestion work.
	MethodCancel = "suggestd/cancel"
)

type jsonRPCRouter struct {
	suggestion controller.Controller
	uuid       uuid.UUID
	stats      tally.Scope
}

// HandleReq handles routing for a single request.
func (r *jsonRPCRouter) HandleReq(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	ctx = context.WithValue(ctx, entity.SessionContextKey, r.uuid)
	r.stats.Tagged(map[string]string{"method": req.Method()}).Counter("requests").Inc(1)

	// Routing to each of the available methods will occur here.
	// Results are passed back to reply to be returned to the client.
	switch req.Method() {
	// Lifecycle related methods.
	case protocol.MethodInitialize:
		return r.Initialize(ctx, reply, req)

	case protocol.MethodInitialized:
		return r.Initialized(ctx, reply, req)

	case protocol.MethodShutdown:
		return r.Shutdown(ctx, reply, req)

	case protocol.MethodExit:
		return r.Exit(ctx, reply, req)

	case MethodRequestFullShutdown:
		return r.RequestFullShutdown(ctx, reply, req)

	// Document related methods.
	case protocol.MethodTextDocumentDidOpen:
		return r.DidOpen(ctx, reply, req)

	case protocol.MethodTextDocumentDidChange:
		return r.DidChange(ctx, reply, req)

	case protocol.MethodTextDocumentDidClose:
		return r.DidClose(ctx, reply, req)

	case protocol.MethodWorkspaceDidChangeWorkspaceFolders:
		return r.DidChangeWorkspaceFolders(ctx, reply, req)

	// Suggestion related methods.
	case MethodSelectionChanged:
		return r.SelectionChanged(ctx, reply, req)

	case MethodFocusChanged:
		return r.FocusChanged(ctx, reply, req)

	case MethodTriggerPrefetch:
		return r.TriggerPrefetch(ctx, reply, req)

	case MethodCancel:
		return r.Cancel(ctx, reply, req)

	default:
		return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
	}
}

func (r *jsonRPCRouter) UUID() uuid.UUID {
	return r.uuid
}
