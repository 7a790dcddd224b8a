package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/infra/metrics"
	"github.com/emanuelef/ytstream-api/internal/transport/http/respond"
	"golang.org/x/time/rate"
)

// MsgRateLimitExceeded is returned by the token-bucket limiter.
const MsgRateLimitExceeded = "Rate limit exceeded"

// RateLimitConfig holds configuration for token-bucket rate limiting.
type RateLimitConfig struct {
	Name              string        // metric label
	RequestsPerMinute int           // sustained requests per minute per IP
	Burst             int           // maximum burst size
	CleanupInterval   time.Duration // idle visitors older than this are dropped
}

// DefaultRateLimitConfig returns the default configuration for download endpoints.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Name:              "download",
		RequestsPerMinute: 30,
		Burst:             5,
		CleanupInterval:   10 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token bucket.
type RateLimiter struct {
	config   RateLimitConfig
	visitors map[string]*visitor
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter creates a RateLimiter and starts its cleanup goroutine. Call Stop to
// end it.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	def := DefaultRateLimitConfig()
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = def.RequestsPerMinute
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.Name == "" {
		config.Name = def.Name
	}

	rl := &RateLimiter{
		config:   config,
		visitors: make(map[string]*visitor),
		stopCh:   make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow reports whether a request from ip may proceed, consuming a token if so.
func (rl *RateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		perSecond := rate.Limit(float64(rl.config.RequestsPerMinute) / 60.0)
		v = &visitor{limiter: rate.NewLimiter(perSecond, rl.config.Burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow()
}

// VisitorCount returns the number of tracked visitors.
func (rl *RateLimiter) VisitorCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// retryAfter is the time for one token to refill, in whole seconds.
func (rl *RateLimiter) retryAfter() int {
	return int(math.Ceil(60.0 / float64(rl.config.RequestsPerMinute)))
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if deleted := rl.cleanup(time.Now().Add(-rl.config.CleanupInterval)); deleted > 0 {
				slog.Debug("Rate limiter cleanup",
					"limiter", rl.config.Name,
					"deleted", deleted,
					"remaining", rl.VisitorCount(),
				)
			}
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup drops visitors not seen since threshold and returns how many were dropped.
func (rl *RateLimiter) cleanup(threshold time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	deleted := 0
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(threshold) {
			delete(rl.visitors, ip)
			deleted++
		}
	}
	return deleted
}

// RateLimitMiddleware rejects requests over the limit with 429 and a JSON error.
func RateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)

			if !rl.Allow(ip) {
				metrics.RateLimitedTotal.WithLabelValues(rl.config.Name).Inc()
				slog.Warn("Rate limit exceeded",
					"limiter", rl.config.Name,
					"ip", ip,
					"path", r.URL.Path,
				)

				w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfter()))
				w.Header().Set("X-RateLimit-Remaining", "0")
				respond.Error(w, http.StatusTooManyRequests, MsgRateLimitExceeded, domain.KindRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
