package proxy

import (
	"errors"
	"fmt"
	"time"

	"toolgate.org/internal/policy"
)

// ErrSessionExpired means the client's session handle is unknown or the
// upstream dropped the backend session; a fresh initialize is required.
var ErrSessionExpired = errors.New("proxy: session expired")

// RateLimitedError carries the retry hint for a denied admission.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("proxy: rate limited, retry after %s", e.RetryAfter)
}

// DeniedError is an authorization denial. The message carries only the
// reason code, never what other roles would have been granted.
type DeniedError struct {
	Tool     string
	Resource string
	Action   policy.Action
	Reason   string
}

func (e *DeniedError) Error() string {
	return "proxy: " + e.Reason
}

// ValidationError is a malformed client envelope.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "proxy: " + e.Message
}
