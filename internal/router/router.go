// Package router applies client mutation requests to the session store and
// rebroadcasts the result to the rest of the session.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/UsmanNazir02/collaborative-whiteboard/internal/board"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

type SessionRouter struct {
	logger *slog.Logger
	store  board.Store
	hub    *board.Hub
}

func New(logger *slog.Logger, store board.Store, hub *board.Hub) *SessionRouter {
	return &SessionRouter{
		logger: logger.With(slog.String("component", "session_router")),
		store:  store,
		hub:    hub,
	}
}

// HandleMessage processes one raw inbound message from a connected client.
// A malformed or unknown message is logged and dropped; a handler failure
// is reported back to the sender as an error envelope. Neither terminates
// the connection.
func (r *SessionRouter) HandleMessage(_ context.Context, sessionID, userID string, msg []byte) {
	msgType := protocol.PeekType(msg)
	if msgType == "" {
		r.logger.Warn("dropping message without a type field",
			slog.String("sessionID", sessionID),
			slog.String("userID", userID),
		)
		return
	}
	env, err := protocol.Decode(msg)
	if err != nil {
		r.logger.Warn("dropping undecodable message",
			slog.String("type", msgType),
			slog.Any("error", err),
		)
		return
	}

	r.logger.Debug("handling message",
		slog.String("type", msgType),
		slog.String("sessionID", sessionID),
		slog.String("userID", userID),
	)

	switch msgType {
	case protocol.TypeAddObject:
		err = r.handleAdd(sessionID, userID, env)
	case protocol.TypeUpdateObject:
		err = r.handleUpdate(sessionID, userID, env)
	case protocol.TypeDeleteObject:
		err = r.handleDelete(sessionID, userID, env)
	case protocol.TypeClearCanvas:
		err = r.handleClear(sessionID, userID)
	case protocol.TypeToolChange:
		r.handleToolChange(sessionID, userID, env)
	default:
		r.logger.Debug("dropping message of unknown type", slog.String("type", msgType))
		return
	}

	if err != nil {
		r.logger.Warn("message handling failed",
			slog.String("type", msgType),
			slog.String("userID", userID),
			slog.Any("error", err),
		)
		r.hub.SendTo(sessionID, userID, &protocol.Envelope{
			Type:    protocol.TypeError,
			Message: err.Error(),
		})
	}
}

func (r *SessionRouter) handleAdd(sessionID, userID string, env *protocol.Envelope) error {
	if env.Object == nil {
		return errors.New("add_object requires an object")
	}
	obj := *env.Object
	if obj.ID == "" {
		obj.ID = uuid.NewString()
	}
	if err := obj.Validate(); err != nil {
		return err
	}
	if err := r.store.ApplyAdd(sessionID, obj); err != nil {
		return fmt.Errorf("add object: %w", err)
	}
	r.hub.Broadcast(sessionID, &protocol.Envelope{
		Type:   protocol.TypeObjectAdded,
		UserID: userID,
		Object: &obj,
	}, userID)
	return nil
}

func (r *SessionRouter) handleUpdate(sessionID, userID string, env *protocol.Envelope) error {
	if env.ObjectID == "" {
		return errors.New("update_object requires an object_id")
	}
	if err := r.store.ApplyUpdate(sessionID, env.ObjectID, env.Updates); err != nil {
		return fmt.Errorf("update object: %w", err)
	}
	r.hub.Broadcast(sessionID, &protocol.Envelope{
		Type:     protocol.TypeObjectUpdated,
		UserID:   userID,
		ObjectID: env.ObjectID,
		Updates:  env.Updates,
	}, userID)
	return nil
}

func (r *SessionRouter) handleDelete(sessionID, userID string, env *protocol.Envelope) error {
	if env.ObjectID == "" {
		return errors.New("delete_object requires an object_id")
	}
	if err := r.store.ApplyDelete(sessionID, env.ObjectID); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	r.hub.Broadcast(sessionID, &protocol.Envelope{
		Type:     protocol.TypeObjectDeleted,
		UserID:   userID,
		ObjectID: env.ObjectID,
	}, userID)
	return nil
}

func (r *SessionRouter) handleClear(sessionID, userID string) error {
	if err := r.store.ApplyClear(sessionID); err != nil {
		return fmt.Errorf("clear canvas: %w", err)
	}
	r.hub.Broadcast(sessionID, &protocol.Envelope{
		Type:   protocol.TypeCanvasCleared,
		UserID: userID,
	}, userID)
	return nil
}

// handleToolChange is pure presence: nothing is stored, the active tool is
// just relayed to everyone else.
func (r *SessionRouter) handleToolChange(sessionID, userID string, env *protocol.Envelope) {
	r.hub.Broadcast(sessionID, &protocol.Envelope{
		Type:   protocol.TypeToolChanged,
		UserID: userID,
		Tool:   env.Tool,
	}, userID)
}
