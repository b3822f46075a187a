package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/config"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestApp(t *testing.T, maxPerIP int) (*App, *httptest.Server) {
	t.Helper()
	cfg := &config.Config{
		Server: config.ServerConfig{
			Address:         ":0",
			ConnectionLimit: config.ConnectionLimitConfig{MaxPerIP: maxPerIP},
		},
		Transport: config.TransportConfig{
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    5 * time.Second,
			MaxMessageBytes: 1 << 20,
		},
	}
	app := NewApp(newTestLogger(), context.Background(), cfg)
	srv := httptest.NewServer(app.http.Handler)
	t.Cleanup(srv.Close)
	return app, srv
}

func createSession(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/sessions", "application/json", nil)
	if err != nil {
		t.Fatalf("POST /api/sessions failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 creating a session, got %d", resp.StatusCode)
	}
	var body struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode create response: %v", err)
	}
	if body.SessionID == "" {
		t.Fatal("create response missing session_id")
	}
	return body.SessionID
}

func getBody(t *testing.T, url string, method string) (int, []byte) {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("building request failed: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body failed: %v", err)
	}
	return resp.StatusCode, raw
}

func wsURL(srv *httptest.Server, sessionID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
}

func TestSessionRESTRoundTrip(t *testing.T) {
	app, srv := newTestApp(t, 8)
	id := createSession(t, srv)

	// Fresh session: objects must be an empty array, never null.
	status, raw := getBody(t, srv.URL+"/api/sessions/"+id, http.MethodGet)
	if status != http.StatusOK {
		t.Fatalf("expected 200 fetching session, got %d", status)
	}
	if got := gjson.GetBytes(raw, "session_id").String(); got != id {
		t.Errorf("session_id mismatch: %q vs %q", got, id)
	}
	if objects := gjson.GetBytes(raw, "objects"); !objects.IsArray() {
		t.Errorf("objects must serialize as an array, got %s", objects.Raw)
	}

	if err := app.store.ApplyAdd(id, protocol.CanvasObject{
		ID: "r1", Kind: protocol.KindRect,
		Attributes: map[string]any{"left": float64(10)},
	}); err != nil {
		t.Fatalf("ApplyAdd failed: %v", err)
	}

	status, raw = getBody(t, srv.URL+"/api/sessions/"+id, http.MethodGet)
	if status != http.StatusOK {
		t.Fatalf("expected 200 fetching session, got %d", status)
	}
	if got := gjson.GetBytes(raw, "objects.#").Int(); got != 1 {
		t.Fatalf("expected 1 object in session, got %d", got)
	}
	if got := gjson.GetBytes(raw, "objects.0.id").String(); got != "r1" {
		t.Errorf("unexpected object id %q", got)
	}

	status, raw = getBody(t, srv.URL+"/api/sessions/"+id+"/export", http.MethodPost)
	if status != http.StatusOK {
		t.Fatalf("expected 200 exporting session, got %d", status)
	}
	if got := gjson.GetBytes(raw, "session_id").String(); got != id {
		t.Errorf("export session_id mismatch: %q", got)
	}
	if got := gjson.GetBytes(raw, "total_objects").Int(); got != 1 {
		t.Errorf("export total_objects = %d, want 1", got)
	}
	if !gjson.GetBytes(raw, "exported_at").Exists() {
		t.Error("export missing exported_at timestamp")
	}
}

func TestExportOfEmptySessionIsArray(t *testing.T) {
	_, srv := newTestApp(t, 8)
	id := createSession(t, srv)

	status, raw := getBody(t, srv.URL+"/api/sessions/"+id+"/export", http.MethodPost)
	if status != http.StatusOK {
		t.Fatalf("expected 200 exporting empty session, got %d", status)
	}
	if objects := gjson.GetBytes(raw, "objects"); !objects.IsArray() {
		t.Errorf("export objects must serialize as an array, got %s", objects.Raw)
	}
}

func TestUnknownSessionIs404(t *testing.T) {
	_, srv := newTestApp(t, 8)

	if status, _ := getBody(t, srv.URL+"/api/sessions/NOPE1234", http.MethodGet); status != http.StatusNotFound {
		t.Errorf("GET unknown session: expected 404, got %d", status)
	}
	if status, _ := getBody(t, srv.URL+"/api/sessions/NOPE1234/export", http.MethodPost); status != http.StatusNotFound {
		t.Errorf("export unknown session: expected 404, got %d", status)
	}
	// Websocket joins for unknown sessions are rejected before the upgrade.
	if status, _ := getBody(t, srv.URL+"/ws/NOPE1234", http.MethodGet); status != http.StatusNotFound {
		t.Errorf("ws join unknown session: expected 404, got %d", status)
	}
}

func TestWebsocketBootstrap(t *testing.T) {
	app, srv := newTestApp(t, 8)
	id := createSession(t, srv)
	if err := app.store.ApplyAdd(id, protocol.CanvasObject{ID: "r1", Kind: protocol.KindRect}); err != nil {
		t.Fatalf("ApplyAdd failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, wsURL(srv, id), nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	_, raw, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("reading bootstrap message failed: %v", err)
	}
	env, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("decoding bootstrap message failed: %v", err)
	}
	if env.Type != protocol.TypeSessionState {
		t.Fatalf("first message must be session_state, got %q", env.Type)
	}
	if env.UserID == "" {
		t.Error("bootstrap must carry the assigned client id")
	}
	if len(env.Objects) != 1 || env.Objects[0].ID != "r1" {
		t.Errorf("bootstrap snapshot missing pre-join objects: %v", env.Objects)
	}
	if len(env.ActiveUsers) != 1 || env.ActiveUsers[0] != env.UserID {
		t.Errorf("bootstrap membership should list the newcomer, got %v", env.ActiveUsers)
	}
}

func TestConnectionLimitPerIP(t *testing.T) {
	_, srv := newTestApp(t, 1)
	id := createSession(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, wsURL(srv, id), nil)
	if err != nil {
		t.Fatalf("first websocket dial failed: %v", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	// Wait for the hub to register the first connection before the second
	// dial so the limiter sees it.
	if _, _, err := ws.Read(ctx); err != nil {
		t.Fatalf("reading bootstrap message failed: %v", err)
	}

	if _, _, err := websocket.Dial(ctx, wsURL(srv, id), nil); err == nil {
		t.Error("second connection from the same address should be rejected")
	}
}
