package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis is a sliding-window limiter shared across gateway instances,
// backed by one sorted set per key scored by request time.
type Redis struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedis builds a Redis-backed limiter admitting limit requests per
// window.
func NewRedis(client *redis.Client, limit int, window time.Duration) *Redis {
	return &Redis{
		client: client,
		limit:  limit,
		window: window,
		prefix: "toolgate:rl:",
	}
}

var _ Limiter = (*Redis)(nil)

// admitScript prunes expired members, then either records the request
// or reports the wait until the oldest member leaves the window. The
// whole check-and-count runs server-side so it is atomic.
var admitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]
redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count >= limit then
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local retry = tonumber(oldest[2]) + window - now
  if retry < 0 then retry = 0 end
  return {0, 0, retry}
end
redis.call('ZADD', key, now, member)
redis.call('PEXPIRE', key, math.ceil(window / 1000))
return {1, limit - count - 1, 0}
`)

func (r *Redis) Admit(ctx context.Context, key string) (Decision, error) {
	res, err := admitScript.Run(ctx, r.client, []string{r.prefix + key},
		time.Now().UnixMicro(), r.window.Microseconds(), r.limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit admit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit admit: unexpected reply length %d", len(res))
	}
	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Microsecond,
	}, nil
}
