package auth

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store implementation used in tests and
// single-node deployments without Postgres.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity
	byEmail    map[string]string
	refresh    map[string]*RefreshToken
	revoked    map[string]RevocationEntry
	now        func() time.Time
}

// MemoryOption configures MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock overrides the time source used for expiry checks.
func WithMemoryClock(fn func() time.Time) MemoryOption {
	return func(m *MemoryStore) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		identities: make(map[string]*Identity),
		byEmail:    make(map[string]string),
		refresh:    make(map[string]*RefreshToken),
		revoked:    make(map[string]RevocationEntry),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MemoryStore) Identities() IdentityStore         { return (*memIdentities)(m) }
func (m *MemoryStore) RefreshTokens() RefreshTokenStore  { return (*memRefresh)(m) }
func (m *MemoryStore) Revocations() RevocationStore      { return (*memRevocations)(m) }

var _ Store = (*MemoryStore)(nil)

type memIdentities MemoryStore

func (m *memIdentities) Create(_ context.Context, identity *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[identity.Email]; ok {
		return ErrAlreadyExists
	}
	now := m.now().UTC()
	cp := *identity
	cp.CreatedAt = now
	cp.UpdatedAt = now
	cp.Roles = append([]string(nil), identity.Roles...)
	m.identities[cp.ID] = &cp
	m.byEmail[cp.Email] = cp.ID
	identity.CreatedAt = now
	identity.UpdatedAt = now
	return nil
}

func (m *memIdentities) Find(_ context.Context, id string) (*Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *identity
	cp.Roles = append([]string(nil), identity.Roles...)
	return &cp, nil
}

func (m *memIdentities) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	m.mu.RLock()
	id, ok := m.byEmail[strings.ToLower(email)]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return m.Find(ctx, id)
}

func (m *memIdentities) SetStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	identity.Status = status
	identity.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memIdentities) GrantRole(_ context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	for _, r := range identity.Roles {
		if r == role {
			return nil
		}
	}
	identity.Roles = append(identity.Roles, role)
	identity.UpdatedAt = m.now().UTC()
	return nil
}

func (m *memIdentities) RevokeRole(_ context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.identities[id]
	if !ok {
		return ErrNotFound
	}
	kept := identity.Roles[:0]
	for _, r := range identity.Roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	identity.Roles = kept
	identity.UpdatedAt = m.now().UTC()
	return nil
}

type memRefresh MemoryStore

func (m *memRefresh) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.refresh[tok.JTI]; ok {
		return ErrAlreadyExists
	}
	cp := *tok
	m.refresh[tok.JTI] = &cp
	return nil
}

func (m *memRefresh) Find(_ context.Context, jti string) (*RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.refresh[jti]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *memRefresh) MarkRotated(_ context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.refresh[jti]
	if !ok || tok.Revoked {
		return false, nil
	}
	tok.Revoked = true
	return true, nil
}

func (m *memRefresh) MarkRevoked(_ context.Context, jti string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tok, ok := m.refresh[jti]; ok {
		tok.Revoked = true
	}
	return nil
}

func (m *memRefresh) MarkRevokedByIdentity(_ context.Context, identityID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tok := range m.refresh {
		if tok.IdentityID == identityID {
			tok.Revoked = true
		}
	}
	return nil
}

type memRevocations MemoryStore

func (m *memRevocations) RevokeToken(_ context.Context, jti string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked["jti:"+jti] = RevocationEntry{Key: jti, RevokedAt: m.now().UTC(), ExpiresAt: expiresAt}
	return nil
}

func (m *memRevocations) TokenRevoked(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.revoked["jti:"+jti]
	if !ok {
		return false, nil
	}
	return m.now().Before(entry.ExpiresAt), nil
}

func (m *memRevocations) RevokeIdentity(_ context.Context, identityID string, revokedAt, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked["id:"+identityID] = RevocationEntry{Key: identityID, RevokedAt: revokedAt, ExpiresAt: expiresAt}
	return nil
}

func (m *memRevocations) IdentityRevokedAt(_ context.Context, identityID string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.revoked["id:"+identityID]
	if !ok || !m.now().Before(entry.ExpiresAt) {
		return time.Time{}, false, nil
	}
	return entry.RevokedAt, true, nil
}
