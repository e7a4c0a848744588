package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

const defaultRateLimitMessage = "Too many requests, please try again later."

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// client IP.
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests, e.g. health probes.
	Skip func(*http.Request) bool
	// Message is returned in the 429 body.
	Message string
}

// counter approximates a sliding window from two adjacent aligned fixed
// windows: the previous one is weighted by how much of it the sliding window
// still covers.
type counter struct {
	start    time.Time
	current  int
	previous int
}

func (c *counter) roll(now time.Time, size time.Duration) {
	aligned := now.Truncate(size)
	gap := aligned.Sub(c.start)
	if gap <= 0 {
		return
	}
	c.previous = 0
	if gap == size {
		c.previous = c.current
	}
	c.current = 0
	c.start = aligned
}

func (c *counter) estimate(now time.Time, size time.Duration) float64 {
	covered := 1 - float64(now.Sub(c.start))/float64(size)
	return float64(c.previous)*max(covered, 0) + float64(c.current)
}

type rateLimiter struct {
	cfg     RateLimitConfig
	now     func() time.Time
	mu      sync.Mutex
	entries map[string]*counter
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Message == "" {
		cfg.Message = defaultRateLimitMessage
	}
	return &rateLimiter{
		cfg:     cfg,
		now:     time.Now,
		entries: make(map[string]*counter),
	}
}

// allow records a hit for key unless the estimated count already reached
// the limit.
func (rl *rateLimiter) allow(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	size := rl.cfg.Window

	rl.mu.Lock()
	defer rl.mu.Unlock()

	c := rl.entries[key]
	if c == nil {
		c = &counter{start: now.Truncate(size)}
		rl.entries[key] = c
	}
	c.roll(now, size)
	resetAt = c.start.Add(size)

	used := c.estimate(now, size)
	if used >= float64(rl.cfg.Max) {
		return 0, resetAt, false
	}
	c.current++
	return max(rl.cfg.Max-int(math.Ceil(used))-1, 0), resetAt, true
}

// cleanup forgets keys without hits in the last two windows.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, c := range rl.entries {
		if now.Sub(c.start) >= 2*rl.cfg.Window {
			delete(rl.entries, key)
		}
	}
}

func (rl *rateLimiter) evict(ctx context.Context) {
	ticker := time.NewTicker(2 * rl.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.cleanup(now)
		}
	}
}

// RateLimit enforces a per-key sliding window limit and answers 429 once it
// is exceeded. Counted responses carry the X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newRateLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus eviction of idle keys until ctx is
// done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	go rl.evict(ctx)
	return rl.middleware
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rl.cfg.Skip != nil && rl.cfg.Skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		remaining, resetAt, ok := rl.allow(rl.cfg.KeyFunc(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(rl.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
		if !ok {
			wait := max(resetAt.Sub(now), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			WriteError(w, http.StatusTooManyRequests, rl.cfg.Message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP or the remote
// host, in that order.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// PathPrefixes matches requests whose path starts with any of prefixes.
func PathPrefixes(prefixes ...string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(r.URL.Path, p) {
				return true
			}
		}
		return false
	}
}
