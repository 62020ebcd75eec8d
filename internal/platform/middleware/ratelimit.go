package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig configures a token bucket per client key.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
	// KeyFunc picks the bucket; RealClientIP when nil.
	KeyFunc func(c echo.Context) string
	Now     func() time.Time
	// IdleTTL is how long an unused bucket is kept. It is never shorter
	// than the time a drained bucket takes to refill, so eviction does not
	// change any client's allowance while PerSecond is positive. Defaults to
	// DefaultBucketIdleTTL.
	IdleTTL time.Duration
}

// DefaultBucketIdleTTL is the minimum time an idle bucket is retained.
const DefaultBucketIdleTTL = 10 * time.Minute

type tokenBucket struct {
	tokens float64
	last   time.Time
}

type limiter struct {
	mu        sync.Mutex
	cfg       RateLimitConfig
	buckets   map[string]*tokenBucket
	lastSweep time.Time
}

// sweep drops buckets unused for IdleTTL. It runs at most once per
// IdleTTL; callers hold l.mu.
func (l *limiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.cfg.IdleTTL {
		return
	}
	l.lastSweep = now
	for key, b := range l.buckets {
		if now.Sub(b.last) >= l.cfg.IdleTTL {
			delete(l.buckets, key)
		}
	}
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// take spends one token from key's bucket. When the bucket is empty it
// returns the number of whole seconds until a token is available.
func (l *limiter) take(key string) (bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.cfg.Now()
	l.sweep(now)
	b, ok := l.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: float64(l.cfg.Burst), last: now}
		l.buckets[key] = b
	}
	b.tokens += now.Sub(b.last).Seconds() * l.cfg.PerSecond
	if max := float64(l.cfg.Burst); b.tokens > max {
		b.tokens = max
	}
	b.last = now

	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	if l.cfg.PerSecond <= 0 {
		return false, 1
	}
	return false, int(math.Ceil((1 - b.tokens) / l.cfg.PerSecond))
}

// RateLimit answers 429 with Retry-After once a client drains its bucket.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = RealClientIP
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	cfg.IdleTTL = bucketIdleTTL(cfg)
	return rateLimit(newLimiter(cfg))
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{cfg: cfg, buckets: make(map[string]*tokenBucket), lastSweep: cfg.Now()}
}

func bucketIdleTTL(cfg RateLimitConfig) time.Duration {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = DefaultBucketIdleTTL
	}
	if cfg.PerSecond > 0 {
		refill := time.Duration(float64(cfg.Burst) / cfg.PerSecond * float64(time.Second))
		if refill > ttl {
			ttl = refill
		}
	}
	return ttl
}

func rateLimit(l *limiter) echo.MiddlewareFunc {
	cfg := l.cfg
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ok, retry := l.take(cfg.KeyFunc(c))
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retry))
				return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
			}
			return next(c)
		}
	}
}
