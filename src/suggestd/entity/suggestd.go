// Package entity contains the domain logic for the suggestd service.
package entity

import (
	"time"

	"github.com/gofrs/uuid"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

type keyType string

// SessionContextKey indicates the key to be used to identify the session UUID in the context.
const SessionContextKey keyType = "SessionUUID"

// Session entity representing a single editor session.
// Exactly one session is current per editor connection; task handles for its
// observation and prefetch work are owned by the suggestion controller's
// registry, keyed by this UUID.
type Session struct {
	UUID             uuid.UUID                  `json:"uuid" zap:"uuid"`
	InitializeParams *protocol.InitializeParams `json:"-" zap:"-"`
	Conn             *jsonrpc2.Conn             `json:"-" zap:"-"`
	WorkspaceRoot    string                     `json:"workspaceRoot" zap:"workspaceRoot"`
	ActiveDocument   uri.URI                    `json:"activeDocument" zap:"activeDocument"`
}

// ChangeEventKind identifies the type of editor change notification.
type ChangeEventKind int

const (
	// ChangeEventValueChanged indicates the document text changed.
	ChangeEventValueChanged ChangeEventKind = iota
	// ChangeEventSelectionChanged indicates the cursor or selection moved.
	ChangeEventSelectionChanged
)

// ChangeEvent is a single editor notification. Immutable and ephemeral, it is
// consumed by the rate limiter and debounce scheduler and then discarded.
type ChangeEvent struct {
	SessionUUID uuid.UUID
	Kind        ChangeEventKind
	Document    uri.URI
	ReceivedAt  time.Time
}

// FetchRequest describes one debounced (or forced) suggestion fetch. It is
// owned solely by the pipeline invocation that carries it and never persisted.
type FetchRequest struct {
	SessionUUID uuid.UUID
	Document    uri.URI
	TriggeredAt time.Time
	Force       bool
}

// Suggestion is a single code suggestion returned by the worker.
type Suggestion struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Workspace holds the registry's view of one workspace root.
type Workspace struct {
	Root string
	// SuggestionsEnabled is the per-workspace override, re-read from the
	// workspace settings file each time the scheduler's gate check runs.
	SuggestionsEnabled bool
	// CacheGenerated is the pre-cache sentinel. Set after the single
	// pre-cache attempt for this workspace; re-armed only by clearing it.
	CacheGenerated bool
}

// Filespace identifies a document's position within its workspace.
type Filespace struct {
	Document     uri.URI
	RelativePath string
}
