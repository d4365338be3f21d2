package auth

import "time"

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Identity represents a human or service account known to the gateway.
// Identities are never physically deleted; they are disabled instead.
type Identity struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	Roles        []string  `json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is the persisted record of an issued refresh token.
// The token itself is a signed JWT; the record tracks rotation state
// keyed by the token's jti.
type RefreshToken struct {
	JTI        string
	IdentityID string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Revoked    bool
}

// RevocationEntry denylists a single token (by jti) or every token of an
// identity (by identity id). Entries expire with the maximum token
// lifetime so the denylist self-prunes.
type RevocationEntry struct {
	Key       string
	RevokedAt time.Time
	ExpiresAt time.Time
}
