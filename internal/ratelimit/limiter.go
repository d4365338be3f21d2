// Package ratelimit admits or rejects requests per identity using a
// sliding window over recent request timestamps.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// Remaining is the number of further requests admissible in the
	// current window.
	Remaining int
	// RetryAfter is set on denial: the wait until the oldest counted
	// request leaves the window. Never exceeds the window length.
	RetryAfter time.Duration
}

// Limiter admits requests keyed by identity id. Admission and counting
// are atomic with respect to concurrent callers sharing a key.
type Limiter interface {
	Admit(ctx context.Context, key string) (Decision, error)
}
