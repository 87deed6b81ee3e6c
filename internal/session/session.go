// Package session keeps per-browser state: the prediction tally and the last
// result shown.
package session

import (
	"sync"
	"time"

	"github.com/fruitlens/fruit-classifier/internal/tally"
	"github.com/google/uuid"
)

// Session is one user's interactive lifetime. Its tally is never shared with
// another session.
type Session struct {
	ID        string
	Tally     *tally.Store
	CreatedAt time.Time

	mu       sync.Mutex
	lastSeen time.Time
	last     any
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:        id,
		Tally:     tally.New(),
		CreatedAt: now,
		lastSeen:  now,
	}
}

// New creates a standalone session, e.g. for a one-shot CLI run.
func New() *Session {
	return newSession(uuid.NewString(), time.Now())
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// SetLast stores the most recent result so a page reload can show it again.
func (s *Session) SetLast(v any) {
	s.mu.Lock()
	s.last = v
	s.mu.Unlock()
}

func (s *Session) Last() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Store holds live sessions keyed by id.
type Store struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, exists := s.sessions[id]
	s.mu.RUnlock()
	if exists {
		sess.touch(s.now())
	}
	return sess, exists
}

// GetOrCreate returns the session for id, creating it with a fresh id when
// id is empty or unknown. The second result is true for new sessions.
func (s *Store) GetOrCreate(id string) (*Session, bool) {
	if id != "" {
		if sess, ok := s.Get(id); ok {
			return sess, false
		}
	}
	sess := newSession(uuid.NewString(), s.now())
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess, true
}

func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sweep ends sessions idle for longer than maxIdle and returns how many were
// removed.
func (s *Store) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.sessions {
		if sess.LastSeen().Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}
