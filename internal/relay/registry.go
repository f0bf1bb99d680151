package relay

import "sync"

// Registry tracks live connections and their joined rooms.
//
// It is an injected dependency with an explicit lifecycle, never a
// package-level singleton, so parallel tests and embedded servers don't
// share state.
//
// Both directions are indexed: user id -> connection for replacement on
// reconnect, and room id -> member set so fan-out queries don't scan
// every connection. All operations are O(1) in the number of rooms.
type Registry struct {
	mu     sync.RWMutex
	byUser map[string]*Conn
	rooms  map[string]map[*Conn]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byUser: make(map[string]*Conn),
		rooms:  make(map[string]map[*Conn]struct{}),
	}
}

// Register tracks a connection for its user. If the user already has a
// live connection the old one is replaced (last-connect-wins) and
// returned so the caller can close its socket; the replacement drops
// out of every room it had joined.
func (r *Registry) Register(conn *Conn) (replaced *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byUser[conn.userID]; ok {
		r.dropLocked(old)
		replaced = old
	}
	r.byUser[conn.userID] = conn
	return replaced
}

// Unregister removes the connection entirely. A stale unregister from
// a socket that has already been replaced is a no-op: the replacement
// stays registered.
func (r *Registry) Unregister(conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.byUser[conn.userID] != conn {
		return
	}
	delete(r.byUser, conn.userID)
	r.dropLocked(conn)
}

func (r *Registry) dropLocked(conn *Conn) {
	for roomID := range conn.rooms {
		if members, ok := r.rooms[roomID]; ok {
			delete(members, conn)
			if len(members) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	conn.rooms = make(map[string]struct{})
}

// JoinRoom adds the connection to a room's fan-out set. Idempotent.
func (r *Registry) JoinRoom(conn *Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn.rooms[roomID] = struct{}{}
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[*Conn]struct{})
		r.rooms[roomID] = members
	}
	members[conn] = struct{}{}
}

// LeaveRoom removes the connection from a room's fan-out set. Idempotent.
func (r *Registry) LeaveRoom(conn *Conn, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(conn.rooms, roomID)
	if members, ok := r.rooms[roomID]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
}

// MembersOf returns the fan-out set for a room, excluding the given
// user id when non-empty.
func (r *Registry) MembersOf(roomID, excludingUserID string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]*Conn, 0, len(members))
	for conn := range members {
		if excludingUserID != "" && conn.userID == excludingUserID {
			continue
		}
		out = append(out, conn)
	}
	return out
}

// Lookup returns the live connection for a user, if any.
func (r *Registry) Lookup(userID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// Len returns the number of tracked connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}
