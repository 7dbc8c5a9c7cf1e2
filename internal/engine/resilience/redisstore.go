package resilience

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisStore is an optional Store implementation that persists breaker
// state across process restarts. It is strictly additive: the breaker's
// correctness per spec §4.3 never depends on Redis being reachable, and a
// failed Redis call degrades to "treat as closed" rather than erroring out
// of the call path. Grounded on the teacher's own go-redis/v8 dependency
// (internal/queue/queue.go), repurposed here from a job queue to a small KV
// store.
type RedisStore struct {
	client *redis.Client
	prefix string
	ctx    context.Context
}

// NewRedisStore connects to redisURL the same way the teacher's
// queue.New does, and returns a Store usable with NewBreakerWithStore.
func NewRedisStore(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("resilience: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("resilience: ping redis: %w", err)
	}
	return &RedisStore{client: client, prefix: prefix, ctx: ctx}, nil
}

func (s *RedisStore) key(k string) string {
	return s.prefix + ":breaker:" + k
}

// Get implements Store. Any Redis-level error is treated as "not found" so
// the breaker falls back to its default closed assumption.
func (s *RedisStore) Get(key string) (BreakerState, int, time.Time, bool) {
	val, err := s.client.Get(s.ctx, s.key(key)).Result()
	if err != nil {
		return "", 0, time.Time{}, false
	}
	parts := strings.SplitN(val, "|", 3)
	if len(parts) != 3 {
		return "", 0, time.Time{}, false
	}
	failures, _ := strconv.Atoi(parts[1])
	unixNano, _ := strconv.ParseInt(parts[2], 10, 64)
	lastFailure := time.Time{}
	if unixNano > 0 {
		lastFailure = time.Unix(0, unixNano)
	}
	return BreakerState(parts[0]), failures, lastFailure, true
}

// Set implements Store, best-effort: write failures are swallowed since
// breaker correctness must not depend on Redis availability.
func (s *RedisStore) Set(key string, state BreakerState, failures int, lastFailure time.Time) {
	val := fmt.Sprintf("%s|%d|%d", state, failures, lastFailure.UnixNano())
	_ = s.client.Set(s.ctx, s.key(key), val, 24*time.Hour).Err()
}

// Close releases the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
