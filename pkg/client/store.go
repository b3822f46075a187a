package client

import (
	"log/slog"
	"sort"

	"github.com/UsmanNazir02/collaborative-whiteboard/pkg/protocol"
)

// RenderSurface is the rendering collaborator. It is told to repaint after
// every mutation and to reset its background when the canvas is cleared.
// The engine never interprets geometry; it only hands over snapshots.
// Callbacks run on the session's apply path: implementations must not call
// back into the owning Session or they will deadlock.
type RenderSurface interface {
	Repaint(objects []protocol.CanvasObject)
	Reset()
}

// Store is the authoritative local mapping of object id to object state for
// the current session. It has no internal locking: both remote and local
// mutations funnel through the session's single apply path.
type Store struct {
	objects map[string]protocol.CanvasObject
	surface RenderSurface
	logger  *slog.Logger
}

func NewStore(surface RenderSurface, logger *slog.Logger) *Store {
	return &Store{
		objects: make(map[string]protocol.CanvasObject),
		surface: surface,
		logger:  logger.With(slog.String("component", "object_store")),
	}
}

// Add inserts an object, overwriting any existing entry with the same id.
// The protocol has no create-conflict concept.
func (s *Store) Add(obj protocol.CanvasObject) {
	s.objects[obj.ID] = obj.Clone()
	s.repaint()
}

// Update shallow-merges the given attributes into an existing object. Keys
// absent from updates keep their previous values. A missing id is a benign
// race (a delete may have won) and leaves the store unchanged.
func (s *Store) Update(id string, updates map[string]any) {
	obj, ok := s.objects[id]
	if !ok {
		s.logger.Debug("update for unknown object, ignoring", slog.String("objectID", id))
		return
	}
	for k, v := range updates {
		obj.Attributes[k] = v
	}
	s.objects[id] = obj
	s.repaint()
}

// Remove deletes an object. A missing id is a no-op.
func (s *Store) Remove(id string) {
	if _, ok := s.objects[id]; !ok {
		return
	}
	delete(s.objects, id)
	s.repaint()
}

// Clear empties the store and tells the render surface to reset.
func (s *Store) Clear() {
	s.objects = make(map[string]protocol.CanvasObject)
	if s.surface != nil {
		s.surface.Reset()
	}
}

// Get returns a copy of the object with the given id.
func (s *Store) Get(id string) (protocol.CanvasObject, bool) {
	obj, ok := s.objects[id]
	if !ok {
		return protocol.CanvasObject{}, false
	}
	return obj.Clone(), true
}

// Len reports the number of stored objects.
func (s *Store) Len() int {
	return len(s.objects)
}

// Snapshot returns a copied, id-sorted view of the store. Z-ordering is a
// rendering concern, not the store's.
func (s *Store) Snapshot() []protocol.CanvasObject {
	out := make([]protocol.CanvasObject, 0, len(s.objects))
	for _, obj := range s.objects {
		out = append(out, obj.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) repaint() {
	if s.surface != nil {
		s.surface.Repaint(s.Snapshot())
	}
}
