// Package board holds the server-side session state: the per-session
// object lists and the hub that fans broadcasts out to connected clients.
package board

import (
	"errors"
	"time"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

var ErrSessionNotFound = errors.New("board: session not found")

// Session is one shared whiteboard as the server knows it. Objects keep
// their insertion order; clients paint in that order on bootstrap.
type Session struct {
	ID           string
	Objects      []protocol.CanvasObject
	CreatedAt    time.Time
	LastActivity time.Time
}

// Export is the response payload for a session export request.
type Export struct {
	SessionID    string                  `json:"session_id"`
	Objects      []protocol.CanvasObject `json:"objects"`
	ExportedAt   time.Time               `json:"exported_at"`
	TotalObjects int                     `json:"total_objects"`
}

// Store owns session lifecycles and applies mutations with the same
// semantics the client store uses, so both sides converge: add overwrites
// on duplicate id, update shallow-merges, update/delete on a missing id is
// a benign no-op.
type Store interface {
	CreateSession() (*Session, error)
	GetSession(id string) (*Session, bool)

	ApplyAdd(sessionID string, obj protocol.CanvasObject) error
	ApplyUpdate(sessionID, objectID string, updates map[string]any) error
	ApplyDelete(sessionID, objectID string) error
	ApplyClear(sessionID string) error

	Export(sessionID string) (*Export, error)

	// PruneIdle drops sessions idle for longer than the given duration and
	// reports how many were removed.
	PruneIdle(idle time.Duration) int
}
