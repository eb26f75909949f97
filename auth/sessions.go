package auth

import (
	"context"
	"sync"
	"time"
)

type memSession struct {
	owner   string
	expires time.Time
}

// MemorySessions is an in-process SessionRegistry.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memSession
	now      func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[string]memSession), now: time.Now}
}

func (m *MemorySessions) Put(_ context.Context, sessionID, owner string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, s := range m.sessions {
		if now.After(s.expires) {
			delete(m.sessions, id)
		}
	}
	m.sessions[sessionID] = memSession{owner: owner, expires: now.Add(ttl)}
	return nil
}

func (m *MemorySessions) Active(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return ok && !m.now().After(s.expires), nil
}

func (m *MemorySessions) Revoke(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}
