package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
	}
}

// bucket is a token bucket. Refill happens lazily on take, so an idle
// bucket costs nothing between requests.
type bucket struct {
	mu       sync.Mutex
	tokens   float64
	burst    float64
	rate     float64 // tokens per second
	last     time.Time
	lastSeen time.Time
}

func newBucket(rate float64, burst int) *bucket {
	now := time.Now()
	return &bucket{
		tokens:   float64(burst),
		burst:    float64(burst),
		rate:     rate,
		last:     now,
		lastSeen: now,
	}
}

// take consumes one token. When the bucket is empty it reports how long
// the caller should wait before retrying.
func (b *bucket) take() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	b.tokens = math.Min(b.burst, b.tokens+now.Sub(b.last).Seconds()*b.rate)
	b.last = now
	b.lastSeen = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if b.rate <= 0 {
		return false, time.Second
	}
	return false, time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
}

func (b *bucket) idleSince(cutoff time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastSeen.Before(cutoff)
}

const (
	bucketTTL     = 10 * time.Minute
	sweepInterval = 256 // bucket creations between idle sweeps
)

// limiterStore keeps one bucket per client key. Buckets idle for longer
// than bucketTTL are swept periodically so the map does not grow with
// every address that ever hit the API.
type limiterStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     RateLimitConfig
	sweepIn int
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	return &limiterStore{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
		sweepIn: sweepInterval,
	}
}

func (s *limiterStore) get(key string) *bucket {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok {
		return b
	}

	s.sweepIn--
	if s.sweepIn <= 0 {
		s.sweepIn = sweepInterval
		cutoff := time.Now().Add(-bucketTTL)
		for k, b := range s.buckets {
			if b.idleSince(cutoff) {
				delete(s.buckets, k)
			}
		}
	}

	b := newBucket(s.cfg.RequestsPerSecond, s.cfg.BurstSize)
	s.buckets[key] = b
	return b
}

// RateLimit returns middleware that enforces a per-client request rate,
// keyed by the caller's IP. Throttled requests get a 429 with a
// Retry-After hint.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newLimiterStore(cfg)
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, wait := store.get(c.RealIP()).take()

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				h.Set("X-RateLimit-Remaining", "0")
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
