package limiter

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// acquireScript increments the counter unless it already reached ARGV[1].
// It returns the new count, or ARGV[1]+1 when the limit was hit.
var acquireScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return current + 1
end
local n = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return n`)

// releaseScript decrements the counter and drops the key at zero.
var releaseScript = redis.NewScript(`
local n = redis.call('DECR', KEYS[1])
if tonumber(n) <= 0 then
	redis.call('DEL', KEYS[1])
	return 0
end
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
return n`)

// RedisLimiter shares slots between server replicas. Counters expire after
// ttl so a crashed replica cannot hold slots forever.
type RedisLimiter struct {
	client *redis.Client
	max    int
	prefix string
	ttl    time.Duration
}

func NewRedisLimiter(client *redis.Client, max int, prefix string, ttl time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		max:    max,
		prefix: prefix,
		ttl:    ttl,
	}
}

// NewRedisFromURL parses a redis:// URL and checks the connection.
func NewRedisFromURL(ctx context.Context, url string, max int) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis: %w", err)
	}

	return NewRedisLimiter(client, max, "mikushare:uploads:", 10*time.Minute), nil
}

func (l *RedisLimiter) Acquire(ctx context.Context, key string) error {
	n, err := acquireScript.Run(ctx, l.client, []string{l.redisKey(key)}, l.max, int(l.ttl.Seconds())).Int()
	if err != nil {
		return fmt.Errorf("failed to acquire upload slot: %w", err)
	}
	if n > l.max {
		return ErrLimitReached
	}
	return nil
}

func (l *RedisLimiter) Release(ctx context.Context, key string) {
	err := releaseScript.Run(ctx, l.client, []string{l.redisKey(key)}, int(l.ttl.Seconds())).Err()
	if err != nil {
		slog.Warn("failed to release upload slot", "error", err)
	}
}

// redisKey hashes key so API keys never appear in Redis key names.
func (l *RedisLimiter) redisKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return l.prefix + hex.EncodeToString(sum[:])
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
