package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZanzyTHEbar/eval-consensus/internal/config"
)

// RedisState is how the shared limiter store looked when the process started
type RedisState string

const (
	RedisDisabled    RedisState = "disabled"
	RedisUnavailable RedisState = "unavailable"
	RedisConnected   RedisState = "connected"
)

// ErrRedisNotConfigured is returned by HealthCheck when REDIS_ADDR is empty
var ErrRedisNotConfigured = errors.New("redis is not configured")

const defaultPingTimeout = 3 * time.Second

// RedisOptions locates the Redis instance shared by every replica of the service
type RedisOptions struct {
	Addr        string
	Password    string
	DB          int
	PingTimeout time.Duration
}

// RedisOptionsFromConfig takes the REDIS_* settings
func RedisOptionsFromConfig(cfg *config.Config) RedisOptions {
	return RedisOptions{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		PingTimeout: defaultPingTimeout,
	}
}

// RedisClient is the rate limiter's view of Redis. The backend is chosen once
// at startup: only a client that answered its first ping is used for limits.
// A configured but unreachable instance keeps its client so health checks can
// tell when it comes back.
type RedisClient struct {
	client         *redis.Client
	opts           RedisOptions
	state          RedisState
	fallbackReason string
}

// NewRedisClient connects and pings once. The returned client is always
// usable; a non-nil error means the limiter will run on memory buckets.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}
	if opts.Addr == "" {
		slog.Info("REDIS_ADDR not set, rate limits are per process")
		return &RedisClient{opts: opts, state: RedisDisabled, fallbackReason: ErrRedisNotConfigured.Error()}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   1,
		DialTimeout:  opts.PingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
		PoolSize:     10,
		PoolTimeout:  2 * time.Second,
	})
	r := &RedisClient{client: client, opts: opts, state: RedisConnected}

	ctx, cancel := context.WithTimeout(context.Background(), opts.PingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		r.state = RedisUnavailable
		r.fallbackReason = fmt.Sprintf("startup ping failed: %v", err)
		slog.Error("Redis unreachable, rate limits are per process", "addr", opts.Addr, "error", err)
		return r, fmt.Errorf("redis ping failed: %w", err)
	}

	slog.Info("Redis connected", "addr", opts.Addr, "db", opts.DB)
	return r, nil
}

func (r *RedisClient) GetClient() *redis.Client {
	return r.client
}

// IsEnabled reports whether the limiter uses Redis
func (r *RedisClient) IsEnabled() bool {
	return r.state == RedisConnected && r.client != nil
}

// Configured reports whether REDIS_ADDR was set
func (r *RedisClient) Configured() bool {
	return r.opts.Addr != ""
}

func (r *RedisClient) State() RedisState {
	if r.state == "" {
		return RedisDisabled
	}
	return r.state
}

// FallbackReason explains why limits are not shared, empty when they are
func (r *RedisClient) FallbackReason() string {
	if r.IsEnabled() {
		return ""
	}
	if r.fallbackReason == "" {
		return ErrRedisNotConfigured.Error()
	}
	return r.fallbackReason
}

// HealthCheck pings the configured instance, whether or not the limiter is
// using it
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	if !r.Configured() || r.client == nil {
		return ErrRedisNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.PingTimeout)
	defer cancel()
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisClient) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// GetPoolStats reports the backend state and, when a client exists, its pool
func (r *RedisClient) GetPoolStats() map[string]interface{} {
	stats := map[string]interface{}{
		"state":      string(r.State()),
		"configured": r.Configured(),
	}
	if reason := r.FallbackReason(); reason != "" {
		stats["fallback_reason"] = reason
	}
	if r.client == nil {
		return stats
	}

	pool := r.client.PoolStats()
	stats["addr"] = r.opts.Addr
	stats["hits"] = pool.Hits
	stats["misses"] = pool.Misses
	stats["timeouts"] = pool.Timeouts
	stats["total_conns"] = pool.TotalConns
	stats["idle_conns"] = pool.IdleConns
	stats["stale_conns"] = pool.StaleConns
	return stats
}
