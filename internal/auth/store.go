package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Identities() IdentityStore
	RefreshTokens() RefreshTokenStore
	Revocations() RevocationStore
}

// IdentityStore manages accounts and their role sets.
type IdentityStore interface {
	Create(ctx context.Context, identity *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	SetStatus(ctx context.Context, id, status string) error
	GrantRole(ctx context.Context, id, role string) error
	RevokeRole(ctx context.Context, id, role string) error
}

// RefreshTokenStore manages refresh token lifecycle records.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, jti string) (*RefreshToken, error)
	// MarkRotated flips an active record to revoked and reports whether
	// this caller performed the transition. Concurrent redeemers of the
	// same token observe exactly one true result.
	MarkRotated(ctx context.Context, jti string) (bool, error)
	MarkRevoked(ctx context.Context, jti string) error
	MarkRevokedByIdentity(ctx context.Context, identityID string) error
}

// RevocationStore is the shared denylist consulted on every verification.
type RevocationStore interface {
	RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error
	TokenRevoked(ctx context.Context, jti string) (bool, error)
	RevokeIdentity(ctx context.Context, identityID string, revokedAt, expiresAt time.Time) error
	// IdentityRevokedAt returns the revocation watermark for an identity.
	// Tokens issued at or before the watermark must be rejected.
	IdentityRevokedAt(ctx context.Context, identityID string) (time.Time, bool, error)
}
