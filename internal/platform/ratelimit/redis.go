package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/psicolfis/checkout-api/internal/platform/redisx"
)

// RedisLimiter shares fixed-window counters across instances using INCR and EXPIRE.
type RedisLimiter struct {
	client redis.UniversalClient
	bucket string
	limit  int
	window time.Duration
	clock  func() time.Time
}

// NewRedisLimiter builds a limiter for one bucket, for example "checkout".
func NewRedisLimiter(client redis.UniversalClient, bucket string, limit int, window time.Duration, clock func() time.Time) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	if limit <= 0 || window <= 0 {
		return nil, errors.New("ratelimit: limit and window must be positive")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		bucket = "default"
	}
	if clock == nil {
		clock = time.Now
	}
	return &RedisLimiter{client: client, bucket: bucket, limit: limit, window: window, clock: clock}, nil
}

// Allow implements Limiter.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.clock()
	windowStart := now.Truncate(l.window)
	redisKey := fmt.Sprintf(redisx.KeyRateLimit, l.bucket, normalizeKey(key), windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}

	count := int(incr.Val())
	if count > l.limit {
		return Decision{Allowed: false, RetryAfter: windowStart.Add(l.window).Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - count}, nil
}
