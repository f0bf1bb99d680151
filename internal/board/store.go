// Package board holds the client-local view of one room's canvas.
//
// The Store is the authoritative "what is drawn right now" for the open
// room. Shapes live in a plain slice whose order IS the paint order:
// later insertions paint over earlier ones, and hit-testing consumers
// iterate the slice in reverse so the topmost hit wins. There is no
// z-index field.
//
// Two insertion paths exist and must not be confused:
//
//   - InsertOptimistic: the local gesture path. The shape enters with a
//     client-chosen temp id before the relay has seen it.
//   - ApplyRemoteInsert: the network path. If the inbound shape echoes a
//     temp id we are still waiting on, it is our own acknowledgement and
//     is treated as a reconcile, never as a second insert.
package board

import (
	"sync"

	"github.com/drawbridge-app/drawbridge/internal/shape"
)

// Store is the in-memory ordered shape collection for one room.
//
// The network reader goroutine and the input path both mutate the
// store, so all access is serialized by a mutex; correctness here is
// about ordering, not throughput.
type Store struct {
	mu     sync.Mutex
	roomID string
	shapes []shape.Shape

	// pending tracks temp ids of optimistic inserts awaiting their
	// acknowledgement. Scoping the echo check to this set means a
	// peer-originated envelope that happens to carry a temp id can
	// never be mistaken for our own echo.
	pending map[string]struct{}

	// local tracks ids (temp or durable) of shapes drawn in this
	// session; the undo stack only ever touches these.
	local map[string]struct{}

	redo []shape.Shape

	onChange func()
}

// NewStore creates an empty store for the given room.
func NewStore(roomID string) *Store {
	return &Store{
		roomID:  roomID,
		pending: make(map[string]struct{}),
		local:   make(map[string]struct{}),
	}
}

// OnChange registers a redraw hook invoked after every mutation that
// changed the visible set. Must be set before the store is shared. The
// hook runs with the store lock held and must not call back into the
// store.
func (s *Store) OnChange(fn func()) {
	s.onChange = fn
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// Seed replaces the store contents with the durable shapes fetched over
// HTTP before the live transport delivers anything. Any local-only state
// from a previous session is discarded, which is how never-acknowledged
// optimistic shapes silently vanish on reload.
func (s *Store) Seed(shapes []shape.Shape) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shapes = append([]shape.Shape(nil), shapes...)
	s.pending = make(map[string]struct{})
	s.local = make(map[string]struct{})
	s.redo = nil
	s.changed()
}

// InsertOptimistic appends a locally drawn shape under a synthetic temp
// id, ahead of any server acknowledgement.
func (s *Store) InsertOptimistic(sh shape.Shape, tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh.ID = ""
	sh.TempID = tempID
	s.shapes = append(s.shapes, sh)
	s.pending[tempID] = struct{}{}
	s.local[tempID] = struct{}{}
	s.redo = nil
	s.changed()
}

// Reconcile swaps the temp id for the server-assigned durable id in
// place, preserving the shape's slice position and therefore its paint
// order. Unknown temp ids are a no-op, not an error: the transport may
// redeliver an acknowledgement that was already applied.
func (s *Store) Reconcile(tempID, durableID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconcileLocked(tempID, durableID)
}

func (s *Store) reconcileLocked(tempID, durableID string) {
	if _, ok := s.pending[tempID]; !ok {
		return
	}
	for i := range s.shapes {
		if s.shapes[i].TempID == tempID && s.shapes[i].ID == "" {
			s.shapes[i].ID = durableID
			s.shapes[i].TempID = ""
			break
		}
	}
	delete(s.pending, tempID)
	if _, ok := s.local[tempID]; ok {
		delete(s.local, tempID)
		s.local[durableID] = struct{}{}
	}
}

// ApplyRemoteInsert handles an inbound draw envelope. If the shape
// echoes a temp id this store is still waiting on, the insert is our
// own acknowledgement and reconciles the pending shape; otherwise it is
// a peer's shape and is appended.
func (s *Store) ApplyRemoteInsert(sh shape.Shape) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sh.TempID != "" {
		if _, ok := s.pending[sh.TempID]; ok {
			s.reconcileLocked(sh.TempID, sh.ID)
			s.changed()
			return
		}
	}

	sh.TempID = ""
	s.shapes = append(s.shapes, sh)
	s.changed()
}

// ApplyRemoteUpdate replaces the shape with the same durable id by the
// full inbound record. Last write wins; fields are never merged. The
// updated shape moves to the end of the slice, so an edited shape
// paints on top.
func (s *Store) ApplyRemoteUpdate(sh shape.Shape) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(sh.ID)
	sh.TempID = ""
	s.shapes = append(s.shapes, sh)
	s.changed()
}

// ApplyRemoteDelete removes the shape with the given durable id. Absent
// ids are a no-op so duplicate delivery and local-first eraser removal
// commute.
func (s *Store) ApplyRemoteDelete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.removeLocked(id) {
		s.changed()
	}
}

func (s *Store) removeLocked(id string) bool {
	for i := range s.shapes {
		if s.shapes[i].ID == id {
			s.shapes = append(s.shapes[:i], s.shapes[i+1:]...)
			return true
		}
	}
	return false
}

// Undo removes the most recently drawn local shape and parks it on the
// redo stack. Undo is client-local only: peers are not sent a delete,
// so their view of the undone shape is unchanged.
func (s *Store) Undo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.shapes) - 1; i >= 0; i-- {
		key := s.shapes[i].ID
		if key == "" {
			key = s.shapes[i].TempID
		}
		if _, ok := s.local[key]; !ok {
			continue
		}
		sh := s.shapes[i]
		s.shapes = append(s.shapes[:i], s.shapes[i+1:]...)
		s.redo = append(s.redo, sh)
		s.changed()
		return true
	}
	return false
}

// Redo re-applies the most recently undone shape, appending it back on
// top. Like Undo it never emits network traffic.
func (s *Store) Redo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.redo) == 0 {
		return false
	}
	sh := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.shapes = append(s.shapes, sh)
	s.changed()
	return true
}

// Shapes returns the shapes in paint order. The returned slice is a
// copy and safe to iterate while the store keeps mutating.
func (s *Store) Shapes() []shape.Shape {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]shape.Shape(nil), s.shapes...)
}

// Len returns the number of visible shapes.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.shapes)
}

// PendingCount returns how many optimistic shapes still await their
// acknowledgement. Mostly useful in tests and diagnostics.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// RoomID returns the room this store mirrors.
func (s *Store) RoomID() string {
	return s.roomID
}
