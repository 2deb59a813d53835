package session

import (
	"strings"
	"sync"
	"time"
)

// Registry owns the live session states. Gateway connections and the HTTP
// API share one registry; each turn locks its session for the duration of
// the dispatch so state transitions stay single-threaded per session.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*State
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*State{}}
}

// Ensure returns the state for the session ID, creating it on first use.
func (r *Registry) Ensure(id string) *State {
	id = strings.TrimSpace(id)
	if id == "" {
		id = "default"
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[id]
	if !ok {
		state = NewState(id)
		r.sessions[id] = state
	}
	return state
}

// Lookup returns the state without creating one.
func (r *Registry) Lookup(id string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.sessions[strings.TrimSpace(id)]
	return state, ok
}

// IDs lists the known session IDs.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SweepIdle expires sessions idle for longer than the TTL and drops them.
// Returns the number of sessions removed.
func (r *Registry) SweepIdle(ttl time.Duration, now time.Time) int {
	if ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, state := range r.sessions {
		// The session lock keeps the idle check and expiry from interleaving
		// with a dispatch that is mid-turn on this state.
		state.Lock()
		idle := now.Sub(state.LastActivity) > ttl
		if idle {
			state.Expire()
		}
		state.Unlock()
		if idle {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}
