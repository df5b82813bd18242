package session

import (
	"fmt"
	"sync"

	"github.com/mcdev12/typerace/go/internal/race"
)

// Store is the registry of live sessions for this process.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byUser   map[string]string
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]string),
	}
}

// Add registers a session. It fails if any participant is already racing.
func (st *Store) Add(s *Session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.sessions[s.ID]; ok {
		return fmt.Errorf("session %s already registered", s.ID)
	}
	for _, id := range s.UserIDs() {
		if other, ok := st.byUser[id]; ok {
			return fmt.Errorf("user %s in session %s: %w", id, other, race.ErrAlreadyInSession)
		}
	}

	st.sessions[s.ID] = s
	for _, id := range s.UserIDs() {
		st.byUser[id] = s.ID
	}
	return nil
}

// Get returns a live session or race.ErrNotFound.
func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s, ok := st.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, race.ErrNotFound)
	}
	return s, nil
}

// SessionOf returns the live session a user is in.
func (st *Store) SessionOf(userID string) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	id, ok := st.byUser[userID]
	return id, ok
}

// Remove evicts a session and frees its participants.
func (st *Store) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.sessions[id]
	if !ok {
		return
	}
	delete(st.sessions, id)
	for _, uid := range s.UserIDs() {
		if st.byUser[uid] == id {
			delete(st.byUser, uid)
		}
	}
}

// Len returns the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()

	return len(st.sessions)
}

// List returns the live sessions in no particular order.
func (st *Store) List() []*Session {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		out = append(out, s)
	}
	return out
}
