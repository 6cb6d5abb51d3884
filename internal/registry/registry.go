package registry

import (
	"sync"

	"github.com/tasklink/realtime/pkg/logger"
)

// Session is the registry's handle on one live connection. Enqueue must not
// block: a full buffer means the peer is too slow and the registry will evict
// the session rather than stall the fan-out.
type Session interface {
	UserID() string
	Enqueue(payload []byte) bool
	Evict()
}

// Registry tracks live sessions grouped by room. It is the only shared
// mutable state in the core; every mutation goes through its mutex.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[Session]bool
	logg  logger.Logger
}

func New(logg logger.Logger) *Registry {
	return &Registry{
		rooms: make(map[string]map[Session]bool),
		logg:  logg,
	}
}

// Register adds s under room. Registering the same session twice is a no-op.
func (r *Registry) Register(room string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.rooms[room]
	if !ok {
		sessions = make(map[Session]bool)
		r.rooms[room] = sessions
	}
	sessions[s] = true
}

// Unregister removes s from room and reports whether it was present.
// The room entry is dropped once its last session leaves, so empty rooms do
// not accumulate over the process lifetime.
func (r *Registry) Unregister(room string, s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessions, ok := r.rooms[room]
	if !ok || !sessions[s] {
		return false
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(r.rooms, room)
	}
	return true
}

// Broadcast sends payload to every session in room except exclude and returns
// the number of sessions it was delivered to. A session whose buffer is full
// is evicted after the sweep; one slow peer never aborts delivery to the
// rest.
func (r *Registry) Broadcast(room string, payload []byte, exclude Session) int {
	r.mu.RLock()
	var slow []Session
	delivered := 0
	for s := range r.rooms[room] {
		if s == exclude {
			continue
		}
		if s.Enqueue(payload) {
			delivered++
		} else {
			slow = append(slow, s)
		}
	}
	r.mu.RUnlock()

	// Eviction runs the session's own teardown, which comes back through
	// Unregister and announces the user offline. Until that lands the slow
	// session stays registered and simply keeps missing frames.
	for _, s := range slow {
		r.logg.Warnf("evicting slow session user=%s room=%s", s.UserID(), room)
		s.Evict()
	}
	return delivered
}

// Count returns the number of sessions currently in room.
func (r *Registry) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns the ids of all rooms with at least one session.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := make([]string, 0, len(r.rooms))
	for room := range r.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Sessions returns the total session count across all rooms.
func (r *Registry) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, sessions := range r.rooms {
		n += len(sessions)
	}
	return n
}
