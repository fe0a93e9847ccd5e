package session

import (
	"sync"
	"time"
)

// IdleTimeout is how long a non-running session may sit in the registry
// before the reaper removes it.
const IdleTimeout = 30 * time.Minute

// Store is the registry of live sessions. Sessions are created and destroyed
// from different code paths concurrently (ingress dispatch, tick-loop
// self-termination, the idle reaper), so every access goes through the lock.
// Callers must stop a session's tick task before deleting it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

func (st *Store) Store(id string, s *Session) {
	st.mu.Lock()
	st.sessions[id] = s
	st.mu.Unlock()
}

func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	s, exists := st.sessions[id]
	st.mu.RUnlock()
	return s, exists
}

func (st *Store) Has(id string) bool {
	st.mu.RLock()
	_, exists := st.sessions[id]
	st.mu.RUnlock()
	return exists
}

func (st *Store) Delete(id string) {
	st.mu.Lock()
	delete(st.sessions, id)
	st.mu.Unlock()
}

func (st *Store) All() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	return all
}

func (st *Store) ByStatus(status Status) []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	var out []*Session
	for _, s := range st.sessions {
		if s.Status() == status {
			out = append(out, s)
		}
	}
	return out
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Cleanup removes sessions that have not been running for longer than
// IdleTimeout and returns how many were removed.
func (st *Store) Cleanup(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	removed := 0
	for id, s := range st.sessions {
		if !s.Running() && now.Sub(s.LastTick()) > IdleTimeout {
			delete(st.sessions, id)
			removed++
		}
	}
	return removed
}
