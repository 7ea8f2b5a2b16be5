package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRedisUnavailable wraps Redis failures seen by the limiter
var ErrRedisUnavailable = errors.New("rate limit store unavailable")

// hitScript counts a hit unless the window is already full.
// Returns {allowed, count, ttl_ms}.
var hitScript = redis.NewScript(`
local count = tonumber(redis.call('GET', KEYS[1]) or '0')
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if count >= limit then
  local ttl = redis.call('PTTL', KEYS[1])
  if ttl < 0 then
    redis.call('PEXPIRE', KEYS[1], window)
    ttl = window
  end
  return {0, count, ttl}
end
count = redis.call('INCR', KEYS[1])
if count == 1 then
  redis.call('PEXPIRE', KEYS[1], window)
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
return {1, count, ttl}
`)

// RedisStore keeps fixed-window counters as Redis keys expiring with the window
type RedisStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisStore creates a RedisStore
func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{
		client: client,
		now:    time.Now,
	}
}

// Hit implements Store
func (s *RedisStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	values, err := hitScript.Run(ctx, s.client, []string{key}, limit, window.Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("%w: unexpected script reply %v", ErrRedisUnavailable, values)
	}

	now := s.now()
	resetAt := now.Add(time.Duration(values[2]) * time.Millisecond)
	return windowResult(values[0] == 1, limit, int(values[1]), resetAt, now), nil
}
