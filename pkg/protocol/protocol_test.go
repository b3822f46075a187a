package protocol_test

import (
	"testing"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

func TestPeekType(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"known type", `{"type":"object_added","user_id":"u1"}`, "object_added"},
		{"unknown type", `{"type":"cursor_moved"}`, "cursor_moved"},
		{"missing type", `{"user_id":"u1"}`, ""},
		{"not an object", `[1,2,3]`, ""},
		{"not json", `{broken`, ""},
		{"empty", ``, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := protocol.PeekType([]byte(tc.raw)); got != tc.want {
				t.Errorf("PeekType(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestDecodeWireFormat(t *testing.T) {
	raw := []byte(`{
		"type": "object_added",
		"user_id": "u1",
		"object": {"id": "r1", "type": "rect", "data": {"left": 10, "width": 50}}
	}`)

	env, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if env.Type != protocol.TypeObjectAdded || env.UserID != "u1" {
		t.Errorf("unexpected envelope header: %+v", env)
	}
	if env.Object == nil || env.Object.ID != "r1" || env.Object.Kind != protocol.KindRect {
		t.Fatalf("object not decoded: %+v", env.Object)
	}
	if got := env.Object.Attributes["left"]; got != float64(10) {
		t.Errorf("attribute left = %v, want 10", got)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := protocol.Decode([]byte(`{"type": 42broken`)); err == nil {
		t.Error("expected decode error for malformed json")
	}
}

func TestValidate(t *testing.T) {
	ok := protocol.CanvasObject{ID: "r1", Kind: protocol.KindCircle}
	if err := ok.Validate(); err != nil {
		t.Errorf("valid object rejected: %v", err)
	}

	for _, bad := range []protocol.CanvasObject{
		{Kind: protocol.KindRect},
		{ID: "r1"},
		{},
	} {
		if err := bad.Validate(); err == nil {
			t.Errorf("expected validation error for %+v", bad)
		}
	}
}

func TestCloneDoesNotAliasAttributes(t *testing.T) {
	orig := protocol.CanvasObject{
		ID: "r1", Kind: protocol.KindRect,
		Attributes: map[string]any{"left": 1},
	}
	cp := orig.Clone()
	cp.Attributes["left"] = 2

	if orig.Attributes["left"] != 1 {
		t.Error("Clone shares the attribute map with the original")
	}
}

func TestEncodeOmitsEmptyFields(t *testing.T) {
	raw, err := protocol.Encode(&protocol.Envelope{Type: protocol.TypeClearCanvas})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if string(raw) != `{"type":"clear_canvas"}` {
		t.Errorf("unexpected wire form: %s", raw)
	}
}
