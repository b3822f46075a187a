package board

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

// Sender is the outbound half of a client connection as the hub sees it.
// *transport.Connection satisfies it.
type Sender interface {
	Send(msg []byte) bool
	Close(err error)
}

type member struct {
	userID string
	ip     string
	conn   Sender
}

// Hub tracks which users are connected to which session and fans server
// pushes out to them. Membership is the server's truth; clients only ever
// mirror what the hub broadcasts.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*member // sessionID -> userID -> member
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]map[string]*member),
		logger:   logger.With(slog.String("component", "hub")),
	}
}

// Connect registers a connection under a freshly assigned user id and tells
// the rest of the session about the newcomer. Returns the assigned id.
func (h *Hub) Connect(sessionID, ip string, conn Sender) string {
	userID := uuid.NewString()

	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		sess = make(map[string]*member)
		h.sessions[sessionID] = sess
	}
	sess[userID] = &member{userID: userID, ip: ip, conn: conn}
	users := usersLocked(sess)
	h.mu.Unlock()

	h.logger.Info("user connected",
		slog.String("sessionID", sessionID),
		slog.String("userID", userID),
	)
	h.Broadcast(sessionID, &protocol.Envelope{
		Type:        protocol.TypeUserJoined,
		UserID:      userID,
		ActiveUsers: users,
	}, userID)
	return userID
}

// Disconnect removes the user, prunes the session entry if it is now empty
// and tells the remaining users who left.
func (h *Hub) Disconnect(sessionID, userID string) {
	h.mu.Lock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := sess[userID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(sess, userID)
	empty := len(sess) == 0
	var users []string
	if empty {
		delete(h.sessions, sessionID)
	} else {
		users = usersLocked(sess)
	}
	h.mu.Unlock()

	h.logger.Info("user disconnected",
		slog.String("sessionID", sessionID),
		slog.String("userID", userID),
	)
	if empty {
		h.logger.Debug("session now empty", slog.String("sessionID", sessionID))
		return
	}
	h.Broadcast(sessionID, &protocol.Envelope{
		Type:        protocol.TypeUserLeft,
		UserID:      userID,
		ActiveUsers: users,
	}, "")
}

// Users lists the user ids currently connected to a session.
func (h *Hub) Users(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		return nil
	}
	return usersLocked(sess)
}

// CountByIP reports live connections from one address, across sessions.
func (h *Hub) CountByIP(ip string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sess := range h.sessions {
		for _, m := range sess {
			if m.ip == ip {
				n++
			}
		}
	}
	return n
}

// SendTo delivers an envelope to a single user.
func (h *Hub) SendTo(sessionID, userID string, env *protocol.Envelope) bool {
	h.mu.RLock()
	var conn Sender
	if sess, ok := h.sessions[sessionID]; ok {
		if m, ok := sess[userID]; ok {
			conn = m.conn
		}
	}
	h.mu.RUnlock()

	if conn == nil {
		return false
	}
	data, err := protocol.Encode(env)
	if err != nil {
		h.logger.Error("failed to encode envelope", slog.Any("error", err))
		return false
	}
	return conn.Send(data)
}

// Broadcast delivers an envelope to every user in the session except
// excludeUser (pass "" to reach everyone). Delivery is best effort; a full
// or dead connection drops the message and will clean itself up through
// its own close path.
func (h *Hub) Broadcast(sessionID string, env *protocol.Envelope, excludeUser string) {
	data, err := protocol.Encode(env)
	if err != nil {
		h.logger.Error("failed to encode envelope", slog.Any("error", err))
		return
	}

	h.mu.RLock()
	sess, ok := h.sessions[sessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]Sender, 0, len(sess))
	for userID, m := range sess {
		if excludeUser != "" && userID == excludeUser {
			continue
		}
		targets = append(targets, m.conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if !conn.Send(data) {
			h.logger.Warn("dropped broadcast to slow or closed connection",
				slog.String("sessionID", sessionID),
			)
		}
	}
}

// CloseAll terminates every live connection, used during shutdown.
func (h *Hub) CloseAll(err error) {
	h.mu.Lock()
	conns := make([]Sender, 0)
	for _, sess := range h.sessions {
		for _, m := range sess {
			conns = append(conns, m.conn)
		}
	}
	h.sessions = make(map[string]map[string]*member)
	h.mu.Unlock()

	for _, conn := range conns {
		conn.Close(err)
	}
}

func usersLocked(sess map[string]*member) []string {
	out := make([]string, 0, len(sess))
	for id := range sess {
		out = append(out, id)
	}
	return out
}
