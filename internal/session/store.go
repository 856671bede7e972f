package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"visiontriage/internal/core"
)

// Session is one user's consultation, keyed by a UUID.  All mutation of the
// embedded conversation must happen while holding the session lock; there is
// only one logical actor per session, the lock just guards against a stray
// concurrent request for the same ID.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	Conversation core.Conversation
}

// Lock acquires the per-session mutex.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the per-session mutex.
func (s *Session) Unlock() { s.mu.Unlock() }

// Store keeps all live sessions in memory.  Sessions are never persisted and
// are dropped when the process exits.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore constructs an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session with a fresh UUID.
func (st *Store) Create() *Session {
	sess := &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[sess.ID] = sess
	return sess
}

// Get looks up a session by ID.
func (st *Store) Get(id string) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	sess, ok := st.sessions[id]
	return sess, ok
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
