package core

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultReapInterval is how often finished sessions are swept out of
// the store.
const DefaultReapInterval = 30 * time.Second

// SessionStore tracks live shell sessions by ID. Sessions whose
// remote command has exited linger until a client collects the exit
// code or the reaper sweeps them.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*ShellSession
	log      *slog.Logger
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*ShellSession),
		log:      slog.Default().With("component", "session_store"),
	}
}

func (st *SessionStore) Put(s *ShellSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
}

func (st *SessionStore) Get(id string) (*ShellSession, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.sessions, id)
}

// Len reports the number of tracked sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// ReapFinished removes every session whose command has exited and
// that finished before the cutoff. Returns how many were removed.
func (st *SessionStore) ReapFinished(olderThan time.Duration) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	reaped := 0
	for id, s := range st.sessions {
		select {
		case <-s.Done():
		default:
			continue
		}
		if olderThan > 0 && time.Since(s.CreatedAt) < olderThan {
			continue
		}
		s.Close()
		delete(st.sessions, id)
		reaped++
	}
	if reaped > 0 {
		st.log.Debug("reaped finished sessions", "count", reaped)
	}
	return reaped
}

// CloseAll force-closes every session. Used at shutdown.
func (st *SessionStore) CloseAll() {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, s := range st.sessions {
		s.Close()
		delete(st.sessions, id)
	}
}
