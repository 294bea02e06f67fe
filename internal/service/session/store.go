package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zhouzirui/tagbot/backend/internal/model/chat"
)

// ErrUserRequired is returned when a session is addressed without a user id.
var ErrUserRequired = errors.New("user id is required")

// Store keeps one in-progress session per user, in memory.
//
// The mutex only guards the map itself; it is never held while a session is
// being processed, so users never wait on each other. Callers must make sure
// a single user's session is mutated by one goroutine at a time.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	now      func() time.Time
}

// NewStore bootstraps an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]chat.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the session of userID, if one exists.
func (s *Store) Get(_ context.Context, userID string) (chat.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[userID]
	return session, ok
}

// GetOrCreate returns the session of userID, provisioning an idle one if
// needed. The new session is stored immediately.
func (s *Store) GetOrCreate(_ context.Context, userID string) (chat.Session, error) {
	if userID == "" {
		return chat.Session{}, ErrUserRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if session, ok := s.sessions[userID]; ok {
		return session, nil
	}

	now := s.now()
	session := chat.Session{
		UserID:    userID,
		State:     chat.StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[userID] = session
	return session, nil
}

// Save writes session back, stamping UpdatedAt.
func (s *Store) Save(_ context.Context, session chat.Session) error {
	if session.UserID == "" {
		return ErrUserRequired
	}

	session.UpdatedAt = s.now()

	s.mu.Lock()
	s.sessions[session.UserID] = session
	s.mu.Unlock()
	return nil
}

// Clear drops the session of userID. Clearing an absent session is a no-op.
func (s *Store) Clear(_ context.Context, userID string) {
	s.mu.Lock()
	delete(s.sessions, userID)
	s.mu.Unlock()
}

// IdleUsers lists users whose session saw no message after cutoff.
func (s *Store) IdleUsers(_ context.Context, cutoff time.Time) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var users []string
	for userID, session := range s.sessions {
		if session.IdleSince(cutoff) {
			users = append(users, userID)
		}
	}
	return users
}

// Len reports how many sessions are active.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
