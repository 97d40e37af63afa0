package session

import (
	"log"
	"sync"
	"time"

	"github.com/cexll/jiralabel/internal/labeling"
	"github.com/cexll/jiralabel/internal/triage"
	"github.com/google/uuid"
)

// Session is one logged-in Jira user.
type Session struct {
	ID          string
	Email       string
	Instance    string
	AccountID   string
	DisplayName string

	Service *labeling.Service
	// View is the issue-labeling state machine of this session.
	View *triage.Controller

	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s *Session) close() {
	if s.View != nil {
		s.View.Close()
	}
}

// Store keeps sessions in memory until they expire.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	lifetime time.Duration
	now      func() time.Time
}

func NewStore(lifetime time.Duration) *Store {
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &Store{
		sessions: make(map[string]*Session),
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Lifetime returns how long a session stays valid.
func (s *Store) Lifetime() time.Duration {
	return s.lifetime
}

// Create assigns sess a new id and expiry and stores it.
func (s *Store) Create(sess *Session) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	sess.ID = uuid.NewString()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(s.lifetime)
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns the live session with id. An expired session is removed.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().Before(sess.ExpiresAt) {
		return sess, true
	}
	s.Delete(id)
	return nil, false
}

// Delete removes the session and tears down its view.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if ok {
		sess.close()
	}
}

// Sweep removes every expired session and returns how many were removed.
func (s *Store) Sweep() int {
	now := s.now()
	var expired []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			expired = append(expired, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		sess.close()
	}
	if len(expired) > 0 {
		log.Printf("[Session] Swept %d expired sessions", len(expired))
	}
	return len(expired)
}

// Len returns the number of stored sessions, expired ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
