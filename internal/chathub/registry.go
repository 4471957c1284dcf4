package chathub

import "sync"

// Registry tracks the currently open sessions of every room.
// It is safe for concurrent use: Register and Unregister take the write lock,
// so removing the last session and dropping the room entry happen atomically;
// Broadcast only reads a snapshot and never changes the registry.
type Registry struct {
	mu    sync.RWMutex
	rooms map[uint]map[string]Session
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[uint]map[string]Session)}
}

// Register adds the session to the room, creating the room entry if needed.
func (r *Registry) Register(roomID uint, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.rooms[roomID]
	if sessions == nil {
		sessions = make(map[string]Session)
		r.rooms[roomID] = sessions
	}
	sessions[s.ID()] = s
}

// Unregister removes the session from the room. The room entry is dropped
// as soon as its last session is gone.
func (r *Registry) Unregister(roomID uint, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.rooms[roomID]
	if sessions == nil {
		return
	}
	if current, ok := sessions[s.ID()]; !ok || current != s {
		return
	}
	delete(sessions, s.ID())
	if len(sessions) == 0 {
		delete(r.rooms, roomID)
	}
}

// Broadcast sends payload to every session registered for the room at call
// time and returns how many sends succeeded. A failing session is skipped.
func (r *Registry) Broadcast(roomID uint, payload []byte) int {
	delivered := 0
	for _, s := range r.snapshot(roomID) {
		if err := s.Send(payload); err == nil {
			delivered++
		}
	}
	return delivered
}

// Count returns the number of sessions open for the room.
func (r *Registry) Count(roomID uint) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[roomID])
}

// Rooms returns the number of rooms with at least one open session.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// CloseAll closes every tracked session and clears the registry.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	var all []Session
	for _, sessions := range r.rooms {
		for _, s := range sessions {
			all = append(all, s)
		}
	}
	r.rooms = make(map[uint]map[string]Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
}

func (r *Registry) snapshot(roomID uint) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.rooms[roomID]
	if len(sessions) == 0 {
		return nil
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s)
	}
	return out
}
