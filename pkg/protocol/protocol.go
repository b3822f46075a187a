// Package protocol defines the JSON envelopes exchanged between whiteboard
// clients and the session server. Every envelope carries a mandatory "type"
// field; the remaining fields depend on the message kind.
package protocol

import (
	"encoding/json"
	"errors"

	"github.com/tidwall/gjson"
)

// Message types pushed by the server.
const (
	TypeSessionState  = "session_state"
	TypeObjectAdded   = "object_added"
	TypeObjectUpdated = "object_updated"
	TypeObjectDeleted = "object_deleted"
	TypeCanvasCleared = "canvas_cleared"
	TypeUserJoined    = "user_joined"
	TypeUserLeft      = "user_left"
	TypeToolChanged   = "tool_changed"
	TypeError         = "error"
)

// Message types sent by clients to request a mutation.
const (
	TypeAddObject    = "add_object"
	TypeUpdateObject = "update_object"
	TypeDeleteObject = "delete_object"
	TypeClearCanvas  = "clear_canvas"
	TypeToolChange   = "tool_change"
)

// Object kinds understood by the canvas. The core never interprets the
// attribute payload; the kind only travels with the object.
const (
	KindPath   = "path"
	KindRect   = "rect"
	KindCircle = "circle"
	KindText   = "text"
)

var ErrMalformedObject = errors.New("protocol: object missing id or type")

// CanvasObject is one drawable element. Attributes hold the kind-specific
// geometry/style fields as an opaque mapping so partial updates never need
// per-kind knowledge.
type CanvasObject struct {
	ID         string         `json:"id"`
	Kind       string         `json:"type"`
	Attributes map[string]any `json:"data"`
}

// Validate checks structural shape only: id and kind must be present.
// Geometry is the renderer's problem.
func (o *CanvasObject) Validate() error {
	if o.ID == "" || o.Kind == "" {
		return ErrMalformedObject
	}
	return nil
}

// Clone returns a deep-enough copy: the attribute map is copied so callers
// can mutate the result without aliasing the stored object. Nested values
// are shared; the protocol treats them as immutable once received.
func (o CanvasObject) Clone() CanvasObject {
	attrs := make(map[string]any, len(o.Attributes))
	for k, v := range o.Attributes {
		attrs[k] = v
	}
	o.Attributes = attrs
	return o
}

// Envelope is the single wire unit. Fields beyond Type are populated per
// message kind; omitempty keeps payloads minimal. UserID doubles as the
// assigned client id on session_state and as the originator id on every
// broadcast mutation.
type Envelope struct {
	Type        string         `json:"type"`
	UserID      string         `json:"user_id,omitempty"`
	Object      *CanvasObject  `json:"object,omitempty"`
	ObjectID    string         `json:"object_id,omitempty"`
	Updates     map[string]any `json:"updates,omitempty"`
	Objects     []CanvasObject `json:"objects,omitempty"`
	ActiveUsers []string       `json:"active_users,omitempty"`
	Tool        string         `json:"tool,omitempty"`
	Message     string         `json:"message,omitempty"`
}

// PeekType extracts the envelope type without decoding the full message.
// Returns "" for payloads that are not JSON objects or lack a type field.
func PeekType(raw []byte) string {
	if !gjson.ValidBytes(raw) {
		return ""
	}
	return gjson.GetBytes(raw, "type").String()
}

// Decode unmarshals a raw message into an Envelope.
func Decode(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Encode marshals an envelope for the wire.
func Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}
