package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process sliding-window limiter.
type Memory struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
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

// NewMemory builds a limiter admitting limit requests per window.
func NewMemory(limit int, window time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		limit:  limit,
		window: window,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Limiter = (*Memory)(nil)

func (m *Memory) Admit(_ context.Context, key string) (Decision, error) {
	now := m.now()
	cutoff := now.Add(-m.window)

	m.mu.Lock()
	defer m.mu.Unlock()

	hits := m.hits[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= m.limit {
		m.hits[key] = kept
		retry := kept[0].Add(m.window).Sub(now)
		if retry < 0 {
			retry = 0
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}

	kept = append(kept, now)
	m.hits[key] = kept
	return Decision{Allowed: true, Remaining: m.limit - len(kept)}, nil
}
