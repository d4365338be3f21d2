// Package sessions tracks the mapping between client-visible session
// handles and the backend session identifiers they stand for.
package sessions

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a handle is unknown or has expired.
var ErrNotFound = errors.New("sessions: not found")

// Session binds a gateway-minted handle to the backend session id the
// upstream returned at initialize time.
type Session struct {
	// Handle is the opaque id the client echoes on each call.
	Handle string `json:"handle"`
	// UpstreamID is the backend's own session identifier. It is only
	// ever copied from an upstream response, never synthesized.
	UpstreamID string    `json:"upstream_id"`
	IdentityID string    `json:"identity_id"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeen   time.Time `json:"last_seen"`
}

// Registry is the shared store of live sessions. Entries expire after
// an inactivity window; Touch extends it.
type Registry interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, handle string) (Session, error)
	// Touch refreshes the inactivity deadline and LastSeen.
	Touch(ctx context.Context, handle string) error
	Delete(ctx context.Context, handle string) error
	ListByIdentity(ctx context.Context, identityID string) ([]Session, error)
	List(ctx context.Context) ([]Session, error)
}
