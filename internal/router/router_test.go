package router_test

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/UsmanNazir02/collaborative-whiteboard/internal/board"
	"github.com/UsmanNazir02/collaborative-whiteboard/internal/router"
	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fakeSender struct {
	mu   sync.Mutex
	sent []*protocol.Envelope
}

func (f *fakeSender) Send(msg []byte) bool {
	env, err := protocol.Decode(msg)
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return true
}

func (f *fakeSender) Close(err error) {}

func (f *fakeSender) received() []*protocol.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*protocol.Envelope, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeSender) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// fixture wires a store, a hub with two connected users and the router.
type fixture struct {
	store     *board.InMemoryStore
	hub       *board.Hub
	router    *router.SessionRouter
	sessionID string
	userA     string
	userB     string
	connA     *fakeSender
	connB     *fakeSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := newTestLogger()
	store := board.NewInMemoryStore(logger)
	hub := board.NewHub(logger)
	r := router.New(logger, store, hub)

	sess, err := store.CreateSession()
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	connA, connB := &fakeSender{}, &fakeSender{}
	userA := hub.Connect(sess.ID, "1.1.1.1", connA)
	userB := hub.Connect(sess.ID, "2.2.2.2", connB)
	connA.clear()
	connB.clear()

	return &fixture{
		store: store, hub: hub, router: r,
		sessionID: sess.ID,
		userA:     userA, userB: userB,
		connA: connA, connB: connB,
	}
}

func (f *fixture) send(t *testing.T, userID string, env *protocol.Envelope) {
	t.Helper()
	raw, err := protocol.Encode(env)
	if err != nil {
		t.Fatalf("failed to encode test message: %v", err)
	}
	f.router.HandleMessage(context.Background(), f.sessionID, userID, raw)
}

func TestAddObjectStoresAndRebroadcasts(t *testing.T) {
	f := newFixture(t)

	f.send(t, f.userA, &protocol.Envelope{
		Type: protocol.TypeAddObject,
		Object: &protocol.CanvasObject{
			ID: "r1", Kind: protocol.KindRect,
			Attributes: map[string]any{"left": float64(10)},
		},
	})

	sess, _ := f.store.GetSession(f.sessionID)
	if len(sess.Objects) != 1 || sess.Objects[0].ID != "r1" {
		t.Fatalf("object not stored: %v", sess.Objects)
	}

	gotB := f.connB.received()
	if len(gotB) != 1 || gotB[0].Type != protocol.TypeObjectAdded {
		t.Fatalf("B expected one object_added, got %v", gotB)
	}
	if gotB[0].UserID != f.userA {
		t.Errorf("broadcast must carry the originator id, got %q", gotB[0].UserID)
	}
	if len(f.connA.received()) != 0 {
		t.Error("originator must not receive its own mutation back")
	}
}

func TestAddObjectAssignsMissingID(t *testing.T) {
	f := newFixture(t)

	f.send(t, f.userA, &protocol.Envelope{
		Type:   protocol.TypeAddObject,
		Object: &protocol.CanvasObject{Kind: protocol.KindPath},
	})

	sess, _ := f.store.GetSession(f.sessionID)
	if len(sess.Objects) != 1 || sess.Objects[0].ID == "" {
		t.Fatalf("expected stored object with generated id, got %v", sess.Objects)
	}
	gotB := f.connB.received()
	if len(gotB) != 1 || gotB[0].Object == nil || gotB[0].Object.ID != sess.Objects[0].ID {
		t.Error("broadcast must carry the generated id")
	}
}

func TestUpdateAndDeleteFlow(t *testing.T) {
	f := newFixture(t)
	f.send(t, f.userA, &protocol.Envelope{
		Type: protocol.TypeAddObject,
		Object: &protocol.CanvasObject{
			ID: "r1", Kind: protocol.KindRect,
			Attributes: map[string]any{"left": float64(10), "width": float64(50)},
		},
	})
	f.connB.clear()

	f.send(t, f.userB, &protocol.Envelope{
		Type:     protocol.TypeUpdateObject,
		ObjectID: "r1",
		Updates:  map[string]any{"left": float64(99)},
	})

	sess, _ := f.store.GetSession(f.sessionID)
	if left := sess.Objects[0].Attributes["left"]; left != float64(99) {
		t.Errorf("left should be 99, got %v", left)
	}
	if width := sess.Objects[0].Attributes["width"]; width != float64(50) {
		t.Errorf("width should be untouched, got %v", width)
	}
	gotA := f.connA.received()
	if len(gotA) != 1 || gotA[0].Type != protocol.TypeObjectUpdated || gotA[0].UserID != f.userB {
		t.Fatalf("A expected object_updated from B, got %v", gotA)
	}

	f.connA.clear()
	f.send(t, f.userB, &protocol.Envelope{
		Type:     protocol.TypeDeleteObject,
		ObjectID: "r1",
	})
	sess, _ = f.store.GetSession(f.sessionID)
	if len(sess.Objects) != 0 {
		t.Errorf("object not deleted: %v", sess.Objects)
	}
	gotA = f.connA.received()
	if len(gotA) != 1 || gotA[0].Type != protocol.TypeObjectDeleted {
		t.Fatalf("A expected object_deleted, got %v", gotA)
	}
}

func TestClearCanvas(t *testing.T) {
	f := newFixture(t)
	f.send(t, f.userA, &protocol.Envelope{
		Type:   protocol.TypeAddObject,
		Object: &protocol.CanvasObject{ID: "r1", Kind: protocol.KindRect},
	})
	f.connB.clear()

	f.send(t, f.userA, &protocol.Envelope{Type: protocol.TypeClearCanvas})

	sess, _ := f.store.GetSession(f.sessionID)
	if len(sess.Objects) != 0 {
		t.Errorf("canvas not cleared: %v", sess.Objects)
	}
	gotB := f.connB.received()
	if len(gotB) != 1 || gotB[0].Type != protocol.TypeCanvasCleared || gotB[0].UserID != f.userA {
		t.Fatalf("B expected canvas_cleared from A, got %v", gotB)
	}
}

func TestToolChangeIsRelayedNotStored(t *testing.T) {
	f := newFixture(t)

	f.send(t, f.userA, &protocol.Envelope{Type: protocol.TypeToolChange, Tool: "eraser"})

	sess, _ := f.store.GetSession(f.sessionID)
	if len(sess.Objects) != 0 {
		t.Error("tool change must not touch the store")
	}
	gotB := f.connB.received()
	if len(gotB) != 1 || gotB[0].Type != protocol.TypeToolChanged || gotB[0].Tool != "eraser" {
		t.Fatalf("B expected tool_changed, got %v", gotB)
	}
	if len(f.connA.received()) != 0 {
		t.Error("originator should not hear its own tool change")
	}
}

func TestInvalidRequestsAnswerWithErrorEnvelope(t *testing.T) {
	f := newFixture(t)

	cases := []*protocol.Envelope{
		{Type: protocol.TypeAddObject},                                      // no object
		{Type: protocol.TypeAddObject, Object: &protocol.CanvasObject{}},    // no kind
		{Type: protocol.TypeUpdateObject, Updates: map[string]any{"x": 1.0}}, // no object_id
		{Type: protocol.TypeDeleteObject},                                   // no object_id
	}
	for _, env := range cases {
		f.connA.clear()
		f.send(t, f.userA, env)
		gotA := f.connA.received()
		if len(gotA) != 1 || gotA[0].Type != protocol.TypeError {
			t.Errorf("%s: expected error envelope back to sender, got %v", env.Type, gotA)
		}
		if len(f.connB.received()) != 0 {
			t.Errorf("%s: invalid request must not be broadcast", env.Type)
		}
	}
}

func TestUnknownAndMalformedMessagesDropped(t *testing.T) {
	f := newFixture(t)

	f.router.HandleMessage(context.Background(), f.sessionID, f.userA, []byte(`{"type":"cursor_moved"}`))
	f.router.HandleMessage(context.Background(), f.sessionID, f.userA, []byte(`{broken`))
	f.router.HandleMessage(context.Background(), f.sessionID, f.userA, []byte(`[]`))

	if len(f.connA.received()) != 0 || len(f.connB.received()) != 0 {
		t.Error("unknown/malformed messages must be dropped silently")
	}
}
