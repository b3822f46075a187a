package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

// REST surface for session lifecycle. Live collaboration happens over the
// websocket; these endpoints only create, inspect and export sessions.

func (a *App) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := a.store.CreateSession()
	if err != nil {
		a.logger.Error("Failed to create session", slog.Any("error", err))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	a.writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.ID,
		"message":    "Session created successfully",
	})
}

func (a *App) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, ok := a.store.GetSession(id)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	objects := sess.Objects
	if objects == nil {
		objects = []protocol.CanvasObject{}
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   sess.ID,
		"objects":      objects,
		"active_users": a.hub.Users(id),
	})
}

func (a *App) exportSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	export, err := a.store.Export(id)
	if err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if export.Objects == nil {
		export.Objects = []protocol.CanvasObject{}
	}
	a.writeJSON(w, http.StatusOK, export)
}

func (a *App) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("Failed to encode response", slog.Any("error", err))
	}
}
