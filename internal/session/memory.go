package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory. Not shared between instances.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewMemoryStore creates a MemoryStore and starts a janitor that evicts
// expired sessions until ctx is cancelled.
func NewMemoryStore(ctx context.Context, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &MemoryStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
	go m.janitor(ctx)
	return m
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.IsExpired() {
		delete(m.sessions, id)
		return nil, ErrNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) Create(context.Context) (*Session, error) {
	return newSession(m.ttl)
}

func (m *MemoryStore) Persist(_ context.Context, s *Session) error {
	s.ExpiresAt = time.Now().Add(m.ttl)
	stored := s.Clone()
	stored.markSaved()

	m.mu.Lock()
	m.sessions[s.ID] = stored
	m.mu.Unlock()

	s.markSaved()
	return nil
}

func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Len returns the number of stored sessions, expired ones included until the janitor runs.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// janitor evicts expired sessions every ttl/4 (at least once a minute).
func (m *MemoryStore) janitor(ctx context.Context) {
	every := m.ttl / 4
	if every > time.Minute || every <= 0 {
		every = time.Minute
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.mu.Lock()
			for id, s := range m.sessions {
				if now.After(s.ExpiresAt) {
					delete(m.sessions, id)
				}
			}
			m.mu.Unlock()
		}
	}
}
