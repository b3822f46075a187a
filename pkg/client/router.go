package client

import (
	"log/slog"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

// Handler processes one decoded envelope of a known type.
type Handler func(env *protocol.Envelope)

// Router classifies inbound envelopes by type and dispatches to typed
// handlers. Unknown types and malformed payloads are logged and dropped;
// forward compatibility with future message kinds is required, so neither
// is ever fatal.
type Router struct {
	logger   *slog.Logger
	handlers map[string]Handler
}

func NewRouter(logger *slog.Logger) *Router {
	return &Router{
		logger:   logger.With(slog.String("component", "message_router")),
		handlers: make(map[string]Handler),
	}
}

// Handle registers the handler for a message type.
func (r *Router) Handle(msgType string, h Handler) {
	r.handlers[msgType] = h
}

// Dispatch routes one raw inbound message.
func (r *Router) Dispatch(raw []byte) {
	msgType := protocol.PeekType(raw)
	if msgType == "" {
		r.logger.Warn("dropping message without a type field")
		return
	}
	h, ok := r.handlers[msgType]
	if !ok {
		r.logger.Debug("dropping message of unknown type", slog.String("type", msgType))
		return
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		r.logger.Warn("dropping undecodable message",
			slog.String("type", msgType),
			slog.Any("error", err),
		)
		return
	}
	h(env)
}
