package ratelimit

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

//go:embed fixed_window.lua
var fixedWindowScript string

const redisKeyPrefix = "ratelimit:slug:"

// RedisLimiter is a fixed window limiter shared by every replica pointing at the same Redis.
// Check and increment run atomically inside a Lua script; keys expire with their window.
type RedisLimiter struct {
	client *redis.Client
	script *redis.Script
	limit  Limit
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(client *redis.Client, limit Limit) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		limit:  limit,
	}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	values, err := r.script.Run(ctx, r.client,
		[]string{redisKeyPrefix + key},
		r.limit.MaxHits,               // ARGV[1]
		r.limit.Window.Milliseconds(), // ARGV[2]
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("run fixed window script: %w", err)
	}
	if len(values) != 3 {
		return Decision{}, fmt.Errorf("unexpected fixed window script reply: %v", values)
	}

	allowed, count, ttlMillis := values[0] == 1, values[1], values[2]
	ttl := time.Duration(ttlMillis) * time.Millisecond
	if ttl < 0 {
		ttl = r.limit.Window
	}

	d := Decision{
		Allow:     allowed,
		Remaining: max(r.limit.MaxHits-count, 0),
		ResetTime: time.Now().Add(ttl),
	}
	if !allowed {
		d.RetryAfter = ttl
	}
	return d, nil
}
