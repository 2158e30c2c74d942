package suggestion

import (
	"context"
	"fmt"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Initialize will store information about a new connection and perform any setup needed.
func (c *controller) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	result := &protocol.InitializeResult{
		ServerInfo: &protocol.ServerInfo{
			Name: "suggestd",
		},
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindFull,
			},
			Workspace: &protocol.ServerCapabilitiesWorkspace{
				WorkspaceFolders: &protocol.ServerCapabilitiesWorkspaceFolders{
					Supported:           true,
					ChangeNotifications: true,
				},
			},
		},
	}

	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting session from context: %w", err)
	}

	s.InitializeParams = params
	s.WorkspaceRoot = workspaceRootFromParams(params)
	if err := c.sessions.Set(ctx, s); err != nil {
		return nil, fmt.Errorf("setting updated session state: %w", err)
	}

	if s.WorkspaceRoot != "" {
		if err := c.workspaces.Add(ctx, s.WorkspaceRoot); err != nil {
			c.logger.Warnf("registering workspace %q: %v", s.WorkspaceRoot, err)
		}
	}

	return result, nil
}

// Initialized completes the handshake for a new connection. The observation
// loop starts lazily on the first opened document, so nothing else happens here.
func (c *controller) Initialized(ctx context.Context, params *protocol.InitializedParams) error {
	c.stats.Counter("sessions_initialized").Inc(1)
	return nil
}

// Shutdown is sent just before Exit to indicate that the session will exit.
func (c *controller) Shutdown(ctx context.Context) error {
	if err := c.CancelInFlightTasks(ctx); err != nil {
		c.logger.Warnf("cancelling tasks during shutdown: %v", err)
	}
	return nil
}

// Exit will be used to either clean up from an individual connection, or shutdown the whole server.
func (c *controller) Exit(ctx context.Context) error {
	if c.fullShutdown == true {
		c.logger.Info("Shutdown signal received.")
		return c.shutdowner.Shutdown()
	}

	s, err := c.sessions.GetFromContext(ctx)
	if err != nil {
		return fmt.Errorf("error during session exit: %w", err)
	}

	return c.EndSession(ctx, s.UUID)
}

func workspaceRootFromParams(params *protocol.InitializeParams) string {
	if params == nil {
		return ""
	}
	if len(params.WorkspaceFolders) > 0 {
		return uri.New(params.WorkspaceFolders[0].URI).Filename()
	}
	if params.RootURI != "" {
		return params.RootURI.Filename()
	}
	return ""
}
