package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/platinummonkey/portalauth/pkg/httputil"
	"github.com/platinummonkey/portalauth/pkg/observability"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the max requests allowed in the time window
	RequestsPerWindow int
	// WindowDuration is the time window for rate limiting
	WindowDuration time.Duration
	// BurstSize allows temporary bursts above the rate
	BurstSize int
}

// DefaultRateLimitConfig allows 60 requests a minute with a burst of 10
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 60,
		WindowDuration:    time.Minute,
		BurstSize:         10,
	}
}

// DefaultLimitedPaths are the anonymous endpoints worth throttling
var DefaultLimitedPaths = []string{"/captcha", "/api/register", "/public/auth/local"}

// RateLimiter decides whether the caller identified by key may proceed
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalRateLimiter keeps one token bucket per key in process memory
type LocalRateLimiter struct {
	config  *RateLimitConfig
	limit   rate.Limit
	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalRateLimiter creates an in-process limiter
func NewLocalRateLimiter(config *RateLimitConfig) *LocalRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &LocalRateLimiter{
		config:  config,
		limit:   rate.Limit(float64(config.RequestsPerWindow) / config.WindowDuration.Seconds()),
		buckets: make(map[string]*bucket),
	}
}

// Allow takes a token from key's bucket
func (rl *LocalRateLimiter) Allow(_ context.Context, key string) (bool, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		burst := rl.config.BurstSize
		if burst < 1 {
			burst = 1
		}
		b = &bucket{limiter: rate.NewLimiter(rl.limit, burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = time.Now()
	return b.limiter.Allow(), nil
}

// Len returns the number of tracked keys
func (rl *LocalRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Cleanup removes buckets idle for more than two windows
func (rl *LocalRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * rl.config.WindowDuration)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// StartCleanup runs Cleanup once per window until ctx is done
func (rl *LocalRateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(rl.config.WindowDuration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				rl.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RedisRateLimiter counts requests per fixed window in redis so the limit
// holds across instances.
type RedisRateLimiter struct {
	redis  redis.UniversalClient
	config *RateLimitConfig
	prefix string
	now    func() time.Time
}

// NewRedisRateLimiter creates a redis-backed limiter
func NewRedisRateLimiter(client redis.UniversalClient, config *RateLimitConfig, prefix string) *RedisRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisRateLimiter{redis: client, config: config, prefix: prefix, now: time.Now}
}

func (rl *RedisRateLimiter) windowKey(key string) string {
	window := rl.now().UnixNano() / int64(rl.config.WindowDuration)
	return fmt.Sprintf("%s:%s:%d", rl.prefix, key, window)
}

// Allow increments key's counter for the current window
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := rl.windowKey(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.config.WindowDuration)
	if _, err := pipe.Exec(ctx); err != nil {
		return true, fmt.Errorf("redis rate limit: %w", err)
	}

	return incr.Val() <= int64(rl.config.RequestsPerWindow), nil
}

// Reset clears key's counter for the current window
func (rl *RedisRateLimiter) Reset(ctx context.Context, key string) error {
	return rl.redis.Del(ctx, rl.windowKey(key)).Err()
}

// RateLimit throttles requests to paths per client address. Limiter errors
// fail open.
func RateLimit(limiter RateLimiter, config *RateLimitConfig, paths []string, logger logrus.FieldLogger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if paths == nil {
		paths = DefaultLimitedPaths
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	limited := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		limited[p] = struct{}{}
	}
	retryAfter := strconv.Itoa(int(config.WindowDuration.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := limited[r.URL.Path]; !ok {
				next.ServeHTTP(w, r)
				return
			}

			key := "ip:" + httputil.ClientIP(r)
			allowed, err := limiter.Allow(r.Context(), key)
			if err != nil {
				observability.FromContext(r.Context(), logger).WithError(err).Warn("Rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.ObserveRateLimited(r.URL.Path)
				w.Header().Set("Retry-After", retryAfter)
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(config.RequestsPerWindow))
				httputil.WriteTooManyRequests(w, "Too many requests.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
