package sessions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Registry with TTL-based expiry.
type Memory struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]Session
}

// MemoryOption configures Memory.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(fn func() time.Time) MemoryOption {
	return func(m *Memory) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemory builds a registry expiring entries after ttl of inactivity.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Registry = (*Memory)(nil)

func (m *Memory) Put(_ context.Context, s Session) error {
	now := m.now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastSeen = now
	m.mu.Lock()
	m.sessions[s.Handle] = s
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, handle string) (Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[handle]
	m.mu.RUnlock()
	if !ok || m.expired(s) {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) Touch(_ context.Context, handle string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[handle]
	if !ok || m.expired(s) {
		delete(m.sessions, handle)
		return ErrNotFound
	}
	s.LastSeen = m.now().UTC()
	m.sessions[handle] = s
	return nil
}

func (m *Memory) Delete(_ context.Context, handle string) error {
	m.mu.Lock()
	delete(m.sessions, handle)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListByIdentity(_ context.Context, identityID string) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if s.IdentityID == identityID && !m.expired(s) {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *Memory) List(_ context.Context) ([]Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Session
	for _, s := range m.sessions {
		if !m.expired(s) {
			out = append(out, s)
		}
	}
	sortSessions(out)
	return out, nil
}

func (m *Memory) expired(s Session) bool {
	return m.now().After(s.LastSeen.Add(m.ttl))
}

func sortSessions(list []Session) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
