// Package server exposes the whiteboard over HTTP: a small REST surface
// for session lifecycle and a websocket endpoint for live collaboration.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/UsmanNazir02/collaborative-whiteboard/internal/board"
	"github.com/UsmanNazir02/collaborative-whiteboard/internal/router"
	"github.com/UsmanNazir02/collaborative-whiteboard/internal/server/middleware"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/config"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/transport"
)

type App struct {
	logger        *slog.Logger
	store         board.Store
	hub           *board.Hub
	sessionRouter *router.SessionRouter
	wg            sync.WaitGroup
	http          *http.Server
	config        *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config) *App {
	store := board.NewInMemoryStore(logger)
	hub := board.NewHub(logger)
	sessionRouter := router.New(logger, store, hub)

	app := &App{
		logger:        logger,
		store:         store,
		hub:           hub,
		sessionRouter: sessionRouter,
		config:        cfg,
		ctx:           rootCtx,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", app.createSessionHandler)
	mux.HandleFunc("GET /api/sessions/{id}", app.getSessionHandler)
	mux.HandleFunc("POST /api/sessions/{id}/export", app.exportSessionHandler)

	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	mux.Handle("/ws/{id}",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewConnectionLimiter(
				logger,
				hub.CountByIP,
				cfg.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	go a.pruneLoop()

	<-a.ctx.Done()
	return a.Shutdown()
}

// pruneLoop periodically drops sessions nobody has touched in a while.
func (a *App) pruneLoop() {
	idle := a.config.Server.SessionIdleTimeout
	if idle <= 0 {
		return
	}
	ticker := time.NewTicker(idle / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.store.PruneIdle(idle)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	var ip string
	if reqMeta != nil {
		ip = reqMeta.IP
	}
	connLogger := a.logger.With(
		slog.String("remoteAddr", ip),
		slog.String("sessionID", sessionID),
	)

	sess, ok := a.store.GetSession(sessionID)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		connLogger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	a.wg.Add(1)
	defer a.wg.Done()

	conn := transport.New(
		r.Context(),
		wsConn,
		transport.Config(a.config.Transport),
		a.logger,
	)

	// Register with the hub first so the joined broadcast reaches the
	// others, then hand the newcomer the full state.
	userID := a.hub.Connect(sessionID, ip, conn)
	conn.OnMessage(func(ctx context.Context, _ uuid.UUID, msg []byte) {
		a.sessionRouter.HandleMessage(ctx, sessionID, userID, msg)
	})
	conn.OnClose(func(_ uuid.UUID, _ websocket.StatusCode, err error) {
		connLogger.Info("Connection closed, removing user from session",
			slog.String("userID", userID),
			slog.Any("reason", err),
		)
		a.hub.Disconnect(sessionID, userID)
	})

	conn.Run()

	// Re-read after joining the hub: an edit landing between the early
	// existence check and Connect would otherwise be missing from both
	// the snapshot and the broadcast stream.
	if snap, ok := a.store.GetSession(sessionID); ok {
		sess = snap
	}
	a.hub.SendTo(sessionID, userID, &protocol.Envelope{
		Type:        protocol.TypeSessionState,
		UserID:      userID,
		Objects:     sess.Objects,
		ActiveUsers: a.hub.Users(sessionID),
	})

	connLogger.Info("User connection fully established", slog.String("userID", userID))
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("Closing all active connections...")
	a.hub.CloseAll(errors.New("graceful shutdown"))

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
