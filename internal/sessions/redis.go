package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix  = "toolgate:sess:"
	identityKeyPrefix = "toolgate:sess:ident:"
	allSessionsKey    = "toolgate:sess:all"
)

// Redis is a Registry shared across gateway instances. Each session is
// a JSON value with the inactivity TTL applied at the key level, plus
// membership in an identity index and a global index for listing.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis builds a registry expiring entries after ttl of inactivity.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

var _ Registry = (*Redis)(nil)

func (r *Redis) Put(ctx context.Context, s Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.LastSeen = now
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("sessions put: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+s.Handle, payload, r.ttl)
	pipe.SAdd(ctx, identityKeyPrefix+s.IdentityID, s.Handle)
	pipe.SAdd(ctx, allSessionsKey, s.Handle)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) Get(ctx context.Context, handle string) (Session, error) {
	payload, err := r.client.Get(ctx, sessionKeyPrefix+handle).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}
	var s Session
	if err := json.Unmarshal(payload, &s); err != nil {
		return Session{}, fmt.Errorf("sessions get: %w", err)
	}
	return s, nil
}

func (r *Redis) Touch(ctx context.Context, handle string) error {
	s, err := r.Get(ctx, handle)
	if err != nil {
		return err
	}
	s.LastSeen = time.Now().UTC()
	payload, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("sessions touch: %w", err)
	}
	return r.client.Set(ctx, sessionKeyPrefix+handle, payload, r.ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, handle string) error {
	s, err := r.Get(ctx, handle)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+handle)
	pipe.SRem(ctx, allSessionsKey, handle)
	if s.IdentityID != "" {
		pipe.SRem(ctx, identityKeyPrefix+s.IdentityID, handle)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (r *Redis) ListByIdentity(ctx context.Context, identityID string) ([]Session, error) {
	return r.collect(ctx, identityKeyPrefix+identityID)
}

func (r *Redis) List(ctx context.Context) ([]Session, error) {
	return r.collect(ctx, allSessionsKey)
}

// collect resolves an index set to live sessions, pruning handles whose
// session key has already expired.
func (r *Redis) collect(ctx context.Context, indexKey string) ([]Session, error) {
	handles, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, err
	}
	var out []Session
	for _, handle := range handles {
		s, err := r.Get(ctx, handle)
		if errors.Is(err, ErrNotFound) {
			_, _ = r.client.SRem(ctx, indexKey, handle).Result()
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sortSessions(out)
	return out, nil
}
