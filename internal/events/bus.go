// Package events fan-outs security events to live subscribers, feeding
// the admin event stream.
package events

import (
	"context"
	"sync"
	"time"
)

// Kind labels a security event.
type Kind string

const (
	KindAuthFailed     Kind = "auth_failed"
	KindAuthzDenied    Kind = "authz_denied"
	KindRateLimited    Kind = "rate_limited"
	KindTokenRotated   Kind = "token_rotated"
	KindTokenRevoked   Kind = "token_revoked"
	KindReplayDetected Kind = "replay_detected"
	KindSessionOpened  Kind = "session_opened"
	KindSessionExpired Kind = "session_expired"
)

// Event is one security-relevant occurrence inside the gateway.
type Event struct {
	Kind       Kind           `json:"kind"`
	IdentityID string         `json:"identity_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// Bus fan-outs events to all active subscribers.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus initialises an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber and returns a channel which will
// receive events. The channel is closed when the provided context ends.
func (b *Bus) Subscribe(ctx context.Context) <-chan Event {
	ch := make(chan Event, 16)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (b *Bus) Publish(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
