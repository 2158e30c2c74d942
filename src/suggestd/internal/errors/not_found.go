package errors

import (
	"fmt"

	"github.com/gofrs/uuid"
	"go.lsp.dev/uri"
)

// UUIDNotFoundError is a service domain error for not found.
type UUIDNotFoundError struct {
	UUID uuid.UUID
}

// Error is an implementation of the error interface.
func (n *UUIDNotFoundError) Error() string {
	return fmt.Sprintf("UUID %q not found", n.UUID)
}

// NoSessionFoundError indicates that a session cannot be found within the context.
type NoSessionFoundError struct{}

// Error is an implementation of the error interface.
func (n *NoSessionFoundError) Error() string {
	return "no session found in context"
}

// WorkspaceNotFoundError indicates that no registered workspace contains the given document.
type WorkspaceNotFoundError struct {
	Document uri.URI
}

// Error is an implementation of the error interface.
func (n *WorkspaceNotFoundError) Error() string {
	return fmt.Sprintf("no workspace mapping for document %q", n.Document)
}
