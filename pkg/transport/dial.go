package transport

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/coder/websocket"
)

// SessionURL joins the server base URL with the websocket path for a
// session, e.g. ws://host:8000 + ABCD1234 -> ws://host:8000/ws/ABCD1234.
func SessionURL(baseURL, sessionID string) string {
	return fmt.Sprintf("%s/ws/%s", strings.TrimRight(baseURL, "/"), sessionID)
}

// Dial opens a websocket to the given session endpoint and wraps it in a
// Connection. The caller sets handlers and calls Run.
func Dial(ctx context.Context, baseURL, sessionID string, config Config, logger *slog.Logger) (*Connection, error) {
	url := SessionURL(baseURL, sessionID)
	ws, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(ctx, ws, config, logger), nil
}
