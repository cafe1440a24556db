package httpx

import (
	"context"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "deploystream:ratelimit:"
	redisPingTimeout  = 2 * time.Second
	redisAllowTimeout = 250 * time.Millisecond
)

// redisRateLimiter keeps fixed-window counters in Redis so that every replica of
// the server draws from the same budget per caller.
type redisRateLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRateLimiter connects to Redis and verifies the connection.
func NewRedisRateLimiter(addr, password string, db int, logger *slog.Logger) (RateLimiter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &redisRateLimiter{client: client, logger: logger}, nil
}

// Allow counts one request against key. The counter and its TTL are read in a
// single round trip; a counter without a TTL gets the window applied. Redis
// failures allow the request.
func (rl *redisRateLimiter) Allow(key string, limit int, window time.Duration) rateDecision {
	if limit <= 0 {
		return rateDecision{allowed: true}
	}
	if window <= 0 {
		window = rateWindowDefault
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisAllowTimeout)
	defer cancel()

	redisKey := redisKeyPrefix + key
	pipe := rl.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttlCmd := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		rl.warn("count", key, err)
		return rateDecision{allowed: true}
	}

	count := int(incr.Val())
	ttl := ttlCmd.Val()
	if ttl <= 0 {
		if err := rl.client.Expire(ctx, redisKey, window).Err(); err != nil {
			rl.warn("expire", key, err)
		}
		ttl = window
	}
	return rateDecision{
		allowed:   count <= limit,
		count:     count,
		windowEnd: time.Now().Add(ttl),
	}
}

func (rl *redisRateLimiter) Close() {
	_ = rl.client.Close()
}

func (rl *redisRateLimiter) warn(op, key string, err error) {
	if rl.logger == nil {
		return
	}
	rl.logger.Error("redis rate limiter error", "op", op, "key", key, "error", err)
}
