package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1]=bucket hash ARGV[1]=limit ARGV[2]=window(ms) ARGV[3]=now(ms)
// 반환: {allowed, remaining, reset(ms)}
var tokenBucketScript = redis.NewScript(`
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
	local tokens = tonumber(state[1])
	local ts = tonumber(state[2])
	if tokens == nil then
		tokens = limit
		ts = now
	end

	local elapsed = math.max(0, now - ts)
	tokens = math.min(limit, tokens + elapsed * limit / window)

	local allowed = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	end

	redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'ts', now)
	redis.call('PEXPIRE', KEYS[1], window * 2)

	local reset = now + math.ceil((limit - tokens) * window / limit)
	return {allowed, math.floor(tokens), reset}
`)

// RedisRateLimiter 여러 서버가 공유하는 Redis 토큰 버킷
type RedisRateLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
}

// RateLimitInfo 요청 제한 상태
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

// NewRedisRateLimiter window 동안 limit건 (버킷 크기 limit, window마다 전부 채워짐)
func NewRedisRateLimiter(client *redis.Client, keyPrefix string, limit int, window time.Duration) *RedisRateLimiter {
	if keyPrefix == "" {
		keyPrefix = "codebattle:ratelimit:"
	}
	if limit <= 0 {
		limit = 60
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RedisRateLimiter{
		client:    client,
		keyPrefix: keyPrefix,
		limit:     limit,
		window:    window,
	}
}

// Allow 요청 1건 허용 여부
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, _, err := r.AllowWithInfo(ctx, key)
	return allowed, err
}

// AllowWithInfo 허용 여부와 남은 토큰, 버킷이 가득 차는 시각
func (r *RedisRateLimiter) AllowWithInfo(ctx context.Context, key string) (bool, *RateLimitInfo, error) {
	now := time.Now().UnixMilli()

	values, err := tokenBucketScript.Run(ctx, r.client,
		[]string{r.keyPrefix + key},
		r.limit, r.window.Milliseconds(), now,
	).Int64Slice()
	if err != nil {
		return false, nil, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(values) < 3 {
		return false, nil, fmt.Errorf("invalid rate limit script result")
	}

	info := &RateLimitInfo{
		Limit:     r.limit,
		Remaining: int(values[1]),
		ResetTime: time.UnixMilli(values[2]),
	}
	return values[0] == 1, info, nil
}

// Reset key의 버킷 제거
func (r *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}
