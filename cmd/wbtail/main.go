// wbtail joins a whiteboard session as a headless client and prints every
// reconciled mutation. Useful for watching a session from a terminal and
// for exercising the sync engine against a live server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/client"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/config"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/logging"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/transport"
)

// consoleSurface is a RenderSurface that narrates instead of painting.
type consoleSurface struct{}

func (consoleSurface) Repaint(objects []protocol.CanvasObject) {
	fmt.Printf("canvas: %d object(s)\n", len(objects))
	for _, obj := range objects {
		fmt.Printf("  %s %s\n", obj.Kind, obj.ID)
	}
}

func (consoleSurface) Reset() {
	fmt.Println("canvas cleared")
}

func main() {
	sessionID := flag.String("session", "", "session id to join (required)")
	serverURL := flag.String("url", "", "server base URL, overrides config")
	flag.Parse()

	bootLogger := logging.New(logging.LevelInfo)
	if *sessionID == "" {
		bootLogger.Error("missing required -session flag")
		os.Exit(2)
	}

	cfg, err := config.Load(bootLogger, "config")
	if err != nil {
		bootLogger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Client.ServerURL = *serverURL
	}

	logger := logging.New(logging.ParseLevel(cfg.Log.Level))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dial := client.WebsocketDialer(cfg.Client.ServerURL, transport.Config(cfg.Transport), logger)
	conn := client.NewConnManager(cfg.Client, *sessionID, dial, logger)
	conn.SetOnState(func(st client.ConnState) {
		fmt.Printf("connection: %s\n", st)
		if st == client.StateGaveUp {
			stop()
		}
	})

	sess := client.NewSession(*sessionID, conn, consoleSurface{}, logger)
	sess.OnToolChange = func(userID, tool string) {
		fmt.Printf("%s switched to %s\n", userID, tool)
	}
	sess.OnServerError = func(message string) {
		fmt.Printf("server error: %s\n", message)
	}

	sess.Open(ctx)
	<-ctx.Done()
	sess.Close()
}
