package mapper

import (
	"context"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/internal/errors"
	"github.com/codeassist/suggestd/src/suggestd/model"
	"github.com/gofrs/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/uri"
)

// UUIDToSession creates a fresh Session entity for a newly accepted connection.
func UUIDToSession(id uuid.UUID, conn *jsonrpc2.Conn) *entity.Session {
	return &entity.Session{
		UUID: id,
		Conn: conn,
	}
}

// SessionToModel maps a Session entity to its model equivalent.
func SessionToModel(s *entity.Session) *model.Session {
	return &model.Session{
		UUID:             s.UUID,
		InitializeParams: s.InitializeParams,
		Conn:             s.Conn,
		WorkspaceRoot:    s.WorkspaceRoot,
		ActiveDocument:   string(s.ActiveDocument),
	}
}

// ModelToSession maps a model Session to its entity equivalent.
func ModelToSession(s *model.Session) (*entity.Session, error) {
	return &entity.Session{
		UUID:             s.UUID,
		InitializeParams: s.InitializeParams,
		Conn:             s.Conn,
		WorkspaceRoot:    s.WorkspaceRoot,
		ActiveDocument:   uri.URI(s.ActiveDocument),
	}, nil
}

// ContextToSessionUUID extracts the session UUID set on an inbound request's context.
func ContextToSessionUUID(c context.Context) (uuid.UUID, error) {
	s, ok := c.Value(entity.SessionContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, &errors.NoSessionFoundError{}
	}
	return s, nil
}
