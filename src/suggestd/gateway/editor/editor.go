// Package editor sends outbound notifications to connected editor clients.
package editor

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/mapper"
	"github.com/gofrs/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.uber.org/zap"
)

const (
	_errSendToClient = "sending notification to editor: %w"

	// MethodPublishSuggestions is the outbound notification carrying fetched suggestions.
	MethodPublishSuggestions = "suggestd/publishSuggestions"
)

// SuggestionsParams are the parameters of a suggestd/publishSuggestions notification.
type SuggestionsParams struct {
	URI         protocol.DocumentURI `json:"uri"`
	Suggestions []entity.Suggestion  `json:"suggestions"`
}

// Gateway is used to send outbound notifications to the editor.
// All calls to the gateway should include a context with a session UUID, which
// will be used to route notifications to the correct editor connection.
type Gateway interface {
	// RegisterClient registers a new client with the gateway. Should be called each time a new editor connection is initialized.
	RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error
	// DeregisterClient removes a client from the gateway. Should be called each time an editor connection is closed.
	DeregisterClient(ctx context.Context, id uuid.UUID) error

	// PublishSuggestions delivers fetched suggestions for a document.
	PublishSuggestions(ctx context.Context, params *SuggestionsParams) error
	// LogMessage sends a window/logMessage notification to the editor.
	LogMessage(ctx context.Context, params *protocol.LogMessageParams) error
}

type gateway struct {
	connections map[uuid.UUID]jsonrpc2.Conn
	clientsMu   sync.Mutex
	logger      *zap.SugaredLogger
}

// New returns a Gateway for sending editor notifications.
func New(logger *zap.SugaredLogger) Gateway {
	return &gateway{
		connections: make(map[uuid.UUID]jsonrpc2.Conn),
		logger:      logger,
	}
}

func (g *gateway) RegisterClient(ctx context.Context, id uuid.UUID, conn *jsonrpc2.Conn) error {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	g.connections[id] = *conn
	return nil
}

func (g *gateway) DeregisterClient(ctx context.Context, id uuid.UUID) error {
	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	delete(g.connections, id)
	return nil
}

func (g *gateway) PublishSuggestions(ctx context.Context, params *SuggestionsParams) error {
	conn, err := g.getConn(ctx)
	if err != nil {
		return fmt.Errorf(_errSendToClient, err)
	}
	return conn.Notify(ctx, MethodPublishSuggestions, params)
}

func (g *gateway) LogMessage(ctx context.Context, params *protocol.LogMessageParams) error {
	conn, err := g.getConn(ctx)
	if err != nil {
		return fmt.Errorf(_errSendToClient, err)
	}
	return conn.Notify(ctx, protocol.MethodWindowLogMessage, params)
}

func (g *gateway) getConn(ctx context.Context) (jsonrpc2.Conn, error) {
	id, err := mapper.ContextToSessionUUID(ctx)
	if err != nil {
		return nil, err
	}

	g.clientsMu.Lock()
	defer g.clientsMu.Unlock()

	conn, ok := g.connections[id]
	if !ok {
		return nil, fmt.Errorf("no connection registered for session %q", id)
	}
	return conn, nil
}
