package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Rate limiting key patterns:
// - ratelimit:{wallet}:artifacts - artifact creations per window
// - ratelimit:{ip}:auth - session requests per window

type RateLimitConfig struct {
	CreateLimit  int
	CreateWindow time.Duration
	AuthLimit    int
	AuthWindow   time.Duration
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		CreateLimit:  20,
		CreateWindow: 60 * time.Second,
		AuthLimit:    10,
		AuthWindow:   60 * time.Second,
	}
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	client goredis.Scripter
	config RateLimitConfig
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

func NewRateLimiter(client goredis.Scripter, config RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// Fixed window counter. Returns {allowed, remaining, ttl}.
var checkLimitScript = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = redis.call('GET', key)
	if current == false then
		current = 0
	else
		current = tonumber(current)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		redis.call('INCR', key)
		if ttl == window then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current - 1, ttl}
	else
		return {0, 0, ttl}
	end
`)

// AllowCreate checks if a producer may create another artifact.
func (r *RateLimiter) AllowCreate(ctx context.Context, wallet string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:artifacts", wallet)
	return r.checkLimit(ctx, key, r.config.CreateLimit, r.config.CreateWindow)
}

// AllowAuth checks if an IP can request another session.
func (r *RateLimiter) AllowAuth(ctx context.Context, ip string) (*RateLimitResult, error) {
	key := fmt.Sprintf("ratelimit:%s:auth", ip)
	return r.checkLimit(ctx, key, r.config.AuthLimit, r.config.AuthWindow)
}

func (r *RateLimiter) checkLimit(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	result, err := checkLimitScript.Run(ctx, r.client, []string{key}, limit, int(window.Seconds())).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) < 3 {
		return nil, fmt.Errorf("unexpected rate limit result format")
	}

	return &RateLimitResult{
		Allowed:   result[0] == 1,
		Remaining: int(result[1]),
		ResetIn:   time.Duration(result[2]) * time.Second,
		Limit:     limit,
	}, nil
}
