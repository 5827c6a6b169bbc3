package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

const (
	defaultSessionTTL = 24 * time.Hour
	sessionIDBytes    = 32
)

// SessionStore maps opaque session ids to user ids. Lifetimes are fixed at
// creation; reads do not extend them.
type SessionStore interface {
	Create(ctx context.Context, userID int64) (string, error)
	// Get returns false for unknown and expired ids.
	Get(ctx context.Context, sessionID string) (int64, bool, error)
	// Destroy is a no-op for unknown ids.
	Destroy(ctx context.Context, sessionID string) error
	// Prune removes expired entries and returns how many were dropped.
	Prune(ctx context.Context) (int, error)
}

type memorySession struct {
	userID    int64
	expiresAt time.Time
}

type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessionStore(ttl time.Duration) *MemorySessionStore {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &MemorySessionStore{
		sessions: make(map[string]memorySession),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemorySessionStore) Create(_ context.Context, userID int64) (string, error) {
	id, err := newSessionID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = memorySession{userID: userID, expiresAt: s.now().Add(s.ttl)}
	return id, nil
}

func (s *MemorySessionStore) Get(_ context.Context, sessionID string) (int64, bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return 0, false, nil
	}
	if !now.Before(session.expiresAt) {
		delete(s.sessions, sessionID)
		return 0, false, nil
	}
	return session.userID, true, nil
}

func (s *MemorySessionStore) Destroy(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *MemorySessionStore) Prune(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if !now.Before(session.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
