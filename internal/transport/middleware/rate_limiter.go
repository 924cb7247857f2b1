// SPDX-License-Identifier: Apache-2.0

package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	headerRateLimitLimit     = "X-RateLimit-Limit"
	headerRateLimitRemaining = "X-RateLimit-Remaining"
	headerRetryAfter         = "Retry-After"

	// pruneThreshold bounds the bucket map; full buckets are dropped once it
	// is exceeded.
	pruneThreshold = 4096
)

type rateLimitDecision struct {
	Allowed           bool
	LimitPerMinute    int
	Remaining         int
	RetryAfterSeconds int
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// inMemoryRateLimiter is a per-key token bucket refilled continuously at
// limitPerMinute/60 tokens per second.
type inMemoryRateLimiter struct {
	mu              sync.Mutex
	limitPerMinute  int
	capacity        float64
	refillPerSecond float64
	buckets         map[string]*tokenBucket
}

func newInMemoryRateLimiter(limitPerMinute int) *inMemoryRateLimiter {
	if limitPerMinute <= 0 {
		limitPerMinute = 1
	}
	capacity := float64(limitPerMinute)
	return &inMemoryRateLimiter{
		limitPerMinute:  limitPerMinute,
		capacity:        capacity,
		refillPerSecond: capacity / 60.0,
		buckets:         make(map[string]*tokenBucket, 32),
	}
}

func (l *inMemoryRateLimiter) Allow(key string, now time.Time) rateLimitDecision {
	l.mu.Lock()
	defer l.mu.Unlock()

	bucket, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= pruneThreshold {
			l.pruneLocked(now)
		}
		bucket = &tokenBucket{tokens: l.capacity, lastRefill: now}
		l.buckets[key] = bucket
	}
	l.refill(bucket, now)

	decision := rateLimitDecision{
		LimitPerMinute: l.limitPerMinute,
		Remaining:      int(math.Floor(bucket.tokens)),
	}

	if bucket.tokens >= 1 {
		bucket.tokens--
		decision.Allowed = true
		decision.Remaining = int(math.Floor(bucket.tokens))
		return decision
	}

	waitSeconds := int(math.Ceil((1 - bucket.tokens) / l.refillPerSecond))
	decision.RetryAfterSeconds = max(waitSeconds, 1)
	return decision
}

func (l *inMemoryRateLimiter) refill(bucket *tokenBucket, now time.Time) {
	elapsed := now.Sub(bucket.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	bucket.tokens = math.Min(l.capacity, bucket.tokens+elapsed*l.refillPerSecond)
	bucket.lastRefill = now
}

func (l *inMemoryRateLimiter) pruneLocked(now time.Time) {
	for key, bucket := range l.buckets {
		l.refill(bucket, now)
		if bucket.tokens >= l.capacity {
			delete(l.buckets, key)
		}
	}
}

// RateLimitByClientIP limits requests per client address. Put it behind
// chi's RealIP so proxied clients are told apart.
func RateLimitByClientIP(limitPerMinute int, logger *slog.Logger) func(http.Handler) http.Handler {
	return rateLimitWithLimiter(newInMemoryRateLimiter(limitPerMinute), logger)
}

func rateLimitWithLimiter(limiter *inMemoryRateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	if limiter == nil {
		panic("middleware.RateLimitByClientIP requires a limiter")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			decision := limiter.Allow(ip, time.Now())

			w.Header().Set(headerRateLimitLimit, strconv.Itoa(decision.LimitPerMinute))
			w.Header().Set(headerRateLimitRemaining, strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				logger.Warn("request rate limited", "client_ip", ip, "path", r.URL.Path)
				w.Header().Set(headerRetryAfter, strconv.Itoa(decision.RetryAfterSeconds))
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
