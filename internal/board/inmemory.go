package board

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

// InMemoryStore keeps all sessions in process memory. Persistence across
// restarts is out of scope; clients re-bootstrap from whatever the server
// holds.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

func NewInMemoryStore(logger *slog.Logger) *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]*Session),
		logger:   logger.With(slog.String("component", "board_store")),
	}
}

// compile-time check to ensure InMemoryStore implements Store.
var _ Store = (*InMemoryStore)(nil)

// newSessionID returns a short join code, e.g. "3F0A81BC".
func newSessionID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

func (s *InMemoryStore) CreateSession() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := newSessionID()
	for {
		if _, exists := s.sessions[id]; !exists {
			break
		}
		id = newSessionID()
	}
	now := time.Now()
	sess := &Session{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
	}
	s.sessions[id] = sess
	s.logger.Info("session created", slog.String("sessionID", id))
	return snapshotSession(sess), nil
}

func (s *InMemoryStore) GetSession(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return snapshotSession(sess), true
}

func (s *InMemoryStore) ApplyAdd(sessionID string, obj protocol.CanvasObject) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	obj = obj.Clone()
	if i := indexOf(sess.Objects, obj.ID); i >= 0 {
		sess.Objects[i] = obj
	} else {
		sess.Objects = append(sess.Objects, obj)
	}
	sess.LastActivity = time.Now()
	return nil
}

func (s *InMemoryStore) ApplyUpdate(sessionID, objectID string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastActivity = time.Now()
	i := indexOf(sess.Objects, objectID)
	if i < 0 {
		// A delete can race ahead of a late update; not an error.
		return nil
	}
	for k, v := range updates {
		sess.Objects[i].Attributes[k] = v
	}
	return nil
}

func (s *InMemoryStore) ApplyDelete(sessionID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastActivity = time.Now()
	i := indexOf(sess.Objects, objectID)
	if i < 0 {
		return nil
	}
	sess.Objects = append(sess.Objects[:i], sess.Objects[i+1:]...)
	return nil
}

func (s *InMemoryStore) ApplyClear(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Objects = nil
	sess.LastActivity = time.Now()
	return nil
}

func (s *InMemoryStore) Export(sessionID string) (*Export, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &Export{
		SessionID:    sessionID,
		Objects:      cloneObjects(sess.Objects),
		ExportedAt:   time.Now().UTC(),
		TotalObjects: len(sess.Objects),
	}, nil
}

func (s *InMemoryStore) PruneIdle(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	pruned := 0
	for id, sess := range s.sessions {
		if sess.LastActivity.Before(cutoff) {
			delete(s.sessions, id)
			pruned++
		}
	}
	if pruned > 0 {
		s.logger.Info("pruned idle sessions", slog.Int("count", pruned))
	}
	return pruned
}

func indexOf(objects []protocol.CanvasObject, id string) int {
	for i := range objects {
		if objects[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneObjects(objects []protocol.CanvasObject) []protocol.CanvasObject {
	out := make([]protocol.CanvasObject, len(objects))
	for i, obj := range objects {
		out[i] = obj.Clone()
	}
	return out
}

func snapshotSession(sess *Session) *Session {
	return &Session{
		ID:           sess.ID,
		Objects:      cloneObjects(sess.Objects),
		CreatedAt:    sess.CreatedAt,
		LastActivity: sess.LastActivity,
	}
}
