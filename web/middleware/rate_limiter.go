package middleware

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// TokenBucket implements a token bucket rate limiter
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a new token bucket
func NewTokenBucket(maxTokens float64, refillRate float64) *TokenBucket {
	return &TokenBucket{
		tokens:     maxTokens,
		maxTokens:  maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow checks if a request can proceed and consumes a token if so
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()

	// Refill tokens based on elapsed time
	tb.tokens = min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	tb.lastRefill = now

	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// Remaining returns the number of tokens remaining
func (tb *TokenBucket) Remaining() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(tb.lastRefill).Seconds()
	tokens := min(tb.maxTokens, tb.tokens+(elapsed*tb.refillRate))
	return int(tokens)
}

// IPRateLimiter manages one token bucket per client IP. The handlers
// consult it after request validation, so malformed requests are
// rejected as such rather than throttled.
type IPRateLimiter struct {
	limit      int
	refillRate float64
	buckets    map[string]*TokenBucket
	mu         sync.Mutex
	logger     *zap.Logger
}

// NewIPRateLimiter creates a limiter allowing count requests per window
// for each client IP.
func NewIPRateLimiter(count int, window time.Duration, logger *zap.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		limit:      count,
		refillRate: float64(count) / window.Seconds(),
		buckets:    make(map[string]*TokenBucket),
		logger:     logger,
	}
}

// Allow checks and consumes a token for the given IP.
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	bucket, exists := l.buckets[ip]
	if !exists {
		// The map grows one entry per distinct client; reset it before
		// it gets out of hand rather than tracking last access times.
		if len(l.buckets) > 10000 {
			l.logger.Info("Resetting rate limiter buckets", zap.Int("buckets", len(l.buckets)))
			l.buckets = make(map[string]*TokenBucket)
		}
		bucket = NewTokenBucket(float64(l.limit), l.refillRate)
		l.buckets[ip] = bucket
	}
	l.mu.Unlock()

	return bucket.Allow()
}

// Remaining returns the remaining tokens for the given IP.
func (l *IPRateLimiter) Remaining(ip string) int {
	l.mu.Lock()
	bucket, exists := l.buckets[ip]
	l.mu.Unlock()

	if !exists {
		return l.limit
	}
	return bucket.Remaining()
}

// Limit returns the configured per-window request count.
func (l *IPRateLimiter) Limit() int {
	return l.limit
}
