package client

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

// Session ties the engine together for one shared whiteboard: it owns the
// object store, routes inbound envelopes, reconciles remote mutations and
// originates local ones.
//
// Local mutations apply optimistically before the broadcast is attempted.
// A false return from a mutation method means the edit is live locally but
// never reached peers; the engine does not retry or roll back. The next
// bootstrap resynchronizes everything.
type Session struct {
	logger    *slog.Logger
	sessionID string

	conn   *ConnManager
	router *Router
	store  *Store

	// OnToolChange and OnServerError surface non-mutation messages to the
	// embedding UI. Optional; set before Open.
	OnToolChange  func(userID, tool string)
	OnServerError func(message string)

	// mu serializes the apply path: inbound envelopes (delivered one at a
	// time by the transport) and UI-originated mutations both take it, so
	// the store itself needs no locking.
	mu       sync.Mutex
	clientID string
	users    map[string]struct{}
}

func NewSession(sessionID string, conn *ConnManager, surface RenderSurface, logger *slog.Logger) *Session {
	logger = logger.With(slog.String("sessionID", sessionID))
	s := &Session{
		logger:    logger.With(slog.String("component", "session")),
		sessionID: sessionID,
		conn:      conn,
		router:    NewRouter(logger),
		store:     NewStore(surface, logger),
		users:     make(map[string]struct{}),
	}

	s.router.Handle(protocol.TypeSessionState, s.bootstrap)
	s.router.Handle(protocol.TypeObjectAdded, s.applyAdd)
	s.router.Handle(protocol.TypeObjectUpdated, s.applyUpdate)
	s.router.Handle(protocol.TypeObjectDeleted, s.applyDelete)
	s.router.Handle(protocol.TypeCanvasCleared, s.applyClear)
	s.router.Handle(protocol.TypeUserJoined, s.applyMembership)
	s.router.Handle(protocol.TypeUserLeft, s.applyMembership)
	s.router.Handle(protocol.TypeToolChanged, s.applyToolChange)
	s.router.Handle(protocol.TypeError, s.applyError)

	conn.SetOnMessage(s.handleMessage)
	return s
}

// Open starts the connection. The server answers with a session_state
// snapshot which bootstraps the local store.
func (s *Session) Open(ctx context.Context) {
	s.conn.Open(ctx)
}

// Close leaves the session for good; no reconnect will follow.
func (s *Session) Close() {
	s.conn.Close()
}

// ClientID returns the server-assigned identity for the current connection.
// Empty until the first bootstrap; replaced on every reconnect.
func (s *Session) ClientID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

// ActiveUsers returns the ids of the participants the server last reported.
func (s *Session) ActiveUsers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	return out
}

// Get returns a copy of one object by id.
func (s *Session) Get(id string) (protocol.CanvasObject, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// Snapshot exposes the store's current contents for the render surface.
func (s *Session) Snapshot() []protocol.CanvasObject {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Snapshot()
}

func (s *Session) handleMessage(_ context.Context, _ uuid.UUID, msg []byte) {
	s.router.Dispatch(msg)
}

// --- inbound reconciliation ---

// isSelf reports whether a broadcast originated from this client's current
// identity. Messages from a previous identity of the same human (before a
// reconnect) are deliberately not suppressed; the bootstrap that follows a
// reconnect replaces the whole store anyway.
func (s *Session) isSelf(originator string) bool {
	return originator != "" && originator == s.clientID
}

func (s *Session) bootstrap(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clientID = env.UserID
	s.users = make(map[string]struct{}, len(env.ActiveUsers))
	for _, id := range env.ActiveUsers {
		s.users[id] = struct{}{}
	}
	s.store.Clear()
	for _, obj := range env.Objects {
		s.store.Add(obj)
	}
	s.logger.Info("session bootstrapped",
		slog.String("clientID", s.clientID),
		slog.Int("objects", s.store.Len()),
		slog.Int("activeUsers", len(s.users)),
	)
}

func (s *Session) applyAdd(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSelf(env.UserID) {
		return
	}
	if env.Object == nil || env.Object.Validate() != nil {
		s.logger.Warn("dropping object_added with malformed object")
		return
	}
	s.store.Add(*env.Object)
}

func (s *Session) applyUpdate(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSelf(env.UserID) {
		return
	}
	if env.ObjectID == "" {
		s.logger.Warn("dropping object_updated without object_id")
		return
	}
	s.store.Update(env.ObjectID, env.Updates)
}

func (s *Session) applyDelete(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSelf(env.UserID) {
		return
	}
	if env.ObjectID == "" {
		s.logger.Warn("dropping object_deleted without object_id")
		return
	}
	s.store.Remove(env.ObjectID)
}

func (s *Session) applyClear(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSelf(env.UserID) {
		return
	}
	s.store.Clear()
}

// applyMembership replaces the active-user set wholesale from the server's
// view; presence is never inferred locally.
func (s *Session) applyMembership(env *protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]struct{}, len(env.ActiveUsers))
	for _, id := range env.ActiveUsers {
		s.users[id] = struct{}{}
	}
}

func (s *Session) applyToolChange(env *protocol.Envelope) {
	s.mu.Lock()
	self := s.isSelf(env.UserID)
	cb := s.OnToolChange
	s.mu.Unlock()
	if self || cb == nil {
		return
	}
	cb(env.UserID, env.Tool)
}

func (s *Session) applyError(env *protocol.Envelope) {
	s.logger.Warn("server reported error", slog.String("message", env.Message))
	if s.OnServerError != nil {
		s.OnServerError(env.Message)
	}
}

// --- local origination ---

// AddObject applies the object locally and broadcasts it. An object with no
// id gets one assigned here; the id is never reassigned afterwards. Returns
// whether the broadcast was handed to an open connection, and an error only
// for structurally invalid input.
func (s *Session) AddObject(obj protocol.CanvasObject) (bool, error) {
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	if err := obj.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.store.Add(obj)
	s.mu.Unlock()

	return s.conn.Send(&protocol.Envelope{
		Type:   protocol.TypeAddObject,
		Object: &obj,
	}), nil
}

// UpdateObject shallow-merges attributes locally and broadcasts the patch.
func (s *Session) UpdateObject(id string, updates map[string]any) bool {
	s.mu.Lock()
	s.store.Update(id, updates)
	s.mu.Unlock()

	return s.conn.Send(&protocol.Envelope{
		Type:     protocol.TypeUpdateObject,
		ObjectID: id,
		Updates:  updates,
	})
}

// DeleteObject removes the object locally and broadcasts the deletion.
func (s *Session) DeleteObject(id string) bool {
	s.mu.Lock()
	s.store.Remove(id)
	s.mu.Unlock()

	return s.conn.Send(&protocol.Envelope{
		Type:     protocol.TypeDeleteObject,
		ObjectID: id,
	})
}

// ClearCanvas empties the local store and broadcasts the clear.
func (s *Session) ClearCanvas() bool {
	s.mu.Lock()
	s.store.Clear()
	s.mu.Unlock()

	return s.conn.Send(&protocol.Envelope{Type: protocol.TypeClearCanvas})
}

// ChangeTool broadcasts the active tool; it carries no canvas state.
func (s *Session) ChangeTool(tool string) bool {
	return s.conn.Send(&protocol.Envelope{
		Type: protocol.TypeToolChange,
		Tool: tool,
	})
}
