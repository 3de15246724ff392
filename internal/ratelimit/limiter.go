package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"
)

// Config holds rate limiter configuration
type Config struct {
	PerMinute       int           // requests per client IP per minute
	BurstMultiplier int           // burst capacity multiplier for the in-memory buckets
	IdleTimeout     time.Duration // in-memory buckets unused this long are dropped
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{
		PerMinute:       60,
		BurstMultiplier: 1,
		IdleTimeout:     10 * time.Minute,
	}
}

// Recorder receives limiter events. *monitoring.Metrics satisfies it.
type Recorder interface {
	IncrementRateLimitBlock()
	IncrementRateLimitFallback()
	IncrementRateLimitRedisError()
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	ResetAt    time.Time     `json:"reset_at"`
	RetryAfter time.Duration `json:"retry_after"`
	Backend    string        `json:"backend"`
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides distributed rate limiting with Redis and in-memory fallback
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	recorder     Recorder

	fallbackLimiters map[string]*bucket
	fallbackMutex    sync.Mutex

	stop     chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a new rate limiter with Redis and in-memory fallback.
// A nil or disabled client uses the in-memory buckets only.
func NewRateLimiter(redisClient *RedisClient, config Config, recorder Recorder) *RateLimiter {
	defaults := DefaultConfig()
	if config.PerMinute <= 0 {
		config.PerMinute = defaults.PerMinute
	}
	if config.BurstMultiplier <= 0 {
		config.BurstMultiplier = defaults.BurstMultiplier
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if redisClient == nil {
		redisClient = &RedisClient{}
	}

	rl := &RateLimiter{
		redisClient:      redisClient,
		config:           config,
		recorder:         recorder,
		fallbackLimiters: make(map[string]*bucket),
		stop:             make(chan struct{}),
	}

	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		slog.Info("Redis rate limiter initialized")
	} else {
		slog.Warn("Using in-memory rate limiting only", "reason", redisClient.FallbackReason())
	}

	go rl.cleanupFallbackLimiters()

	return rl
}

// Config returns the effective configuration
func (rl *RateLimiter) Config() Config {
	return rl.config
}

// AllowIP checks if an IP address is allowed to make a request (per-minute limit)
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	key := fmt.Sprintf("ratelimit:ip:%s", ip)
	return rl.allow(ctx, key, rl.config.PerMinute, time.Minute)
}

// allow performs the actual rate limit check using Redis or fallback
func (rl *RateLimiter) allow(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	if rl.redisLimiter != nil {
		result, err := rl.allowRedis(ctx, key, limit, period)
		if err == nil {
			return result, nil
		}
		slog.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
		if rl.recorder != nil {
			rl.recorder.IncrementRateLimitRedisError()
		}
	}

	if rl.recorder != nil {
		rl.recorder.IncrementRateLimitFallback()
	}
	return rl.allowFallback(key, limit, period), nil
}

// allowRedis performs rate limiting using the redis_rate GCRA limiter
func (rl *RateLimiter) allowRedis(ctx context.Context, key string, limit int, period time.Duration) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit,
		Burst:  limit,
		Period: period,
	})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}

	result := &Result{
		Allowed:   res.Allowed > 0,
		Limit:     res.Limit.Rate,
		Remaining: res.Remaining,
		ResetAt:   time.Now().Add(res.ResetAfter),
		Backend:   "redis",
	}
	if !result.Allowed {
		result.RetryAfter = res.RetryAfter
	}
	return result, nil
}

// allowFallback performs rate limiting using in-memory token buckets
func (rl *RateLimiter) allowFallback(key string, limit int, period time.Duration) *Result {
	perToken := period / time.Duration(limit)
	burst := limit * rl.config.BurstMultiplier
	now := time.Now()

	rl.fallbackMutex.Lock()
	b, exists := rl.fallbackLimiters[key]
	if !exists {
		b = &bucket{limiter: rate.NewLimiter(rate.Every(perToken), burst)}
		rl.fallbackLimiters[key] = b
	}
	b.lastSeen = now
	rl.fallbackMutex.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	result := &Result{
		Allowed:   allowed,
		Limit:     limit,
		Remaining: int(math.Max(0, math.Floor(tokens))),
		Backend:   "memory",
	}

	missing := float64(burst) - tokens
	result.ResetAt = now.Add(time.Duration(missing * float64(perToken)))
	if !allowed {
		result.RetryAfter = time.Duration((1 - tokens) * float64(perToken))
		if result.RetryAfter < time.Second {
			result.RetryAfter = time.Second
		}
	}
	return result
}

// cleanupFallbackLimiters periodically drops idle in-memory buckets
func (rl *RateLimiter) cleanupFallbackLimiters() {
	ticker := time.NewTicker(rl.config.IdleTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			if n := rl.dropIdle(time.Now()); n > 0 {
				slog.Debug("Cleaned up fallback rate limiters", "count", n)
			}
		}
	}
}

func (rl *RateLimiter) dropIdle(now time.Time) int {
	rl.fallbackMutex.Lock()
	defer rl.fallbackMutex.Unlock()

	dropped := 0
	for key, b := range rl.fallbackLimiters {
		if now.Sub(b.lastSeen) > rl.config.IdleTimeout {
			delete(rl.fallbackLimiters, key)
			dropped++
		}
	}
	return dropped
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.fallbackMutex.Lock()
	fallbackCount := len(rl.fallbackLimiters)
	rl.fallbackMutex.Unlock()

	stats := map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"redis":             rl.redisClient.GetPoolStats(),
		"fallback_limiters": fallbackCount,
		"per_minute":        rl.config.PerMinute,
	}
	return stats
}
