package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/emanuelef/ytstream-api/internal/domain"
	"github.com/emanuelef/ytstream-api/internal/infra/metrics"
	"github.com/emanuelef/ytstream-api/internal/transport/http/respond"
	gocache "github.com/patrickmn/go-cache"
)

// DefaultWindowMessage is the rejection message of the info limiter.
const DefaultWindowMessage = "Too many requests, slow down."

// WindowConfig configures a fixed-window limiter.
type WindowConfig struct {
	Name    string        // metric label
	Window  time.Duration // window length, starting at a client's first request
	Max     int           // requests allowed per window
	Message string        // error message on rejection
}

// WindowLimiter counts requests per key in fixed windows. Counters live in go-cache and
// expire with their window, so idle clients cost nothing.
type WindowLimiter struct {
	config   WindowConfig
	counters *gocache.Cache
}

// NewWindowLimiter creates a WindowLimiter.
func NewWindowLimiter(config WindowConfig) *WindowLimiter {
	if config.Window <= 0 {
		config.Window = 5 * time.Minute
	}
	if config.Max <= 0 {
		config.Max = 10
	}
	if config.Message == "" {
		config.Message = DefaultWindowMessage
	}
	if config.Name == "" {
		config.Name = "info"
	}
	return &WindowLimiter{
		config:   config,
		counters: gocache.New(config.Window, config.Window),
	}
}

// Allow counts a request for key. When the window's budget is spent it returns false and
// the time until the window resets.
func (l *WindowLimiter) Allow(key string) (bool, time.Duration) {
	for attempt := 0; attempt < 2; attempt++ {
		if err := l.counters.Add(key, 1, l.config.Window); err == nil {
			return true, 0
		}

		n, err := l.counters.IncrementInt(key, 1)
		if err != nil {
			// window expired between Add and IncrementInt; start a new one
			continue
		}
		if n <= l.config.Max {
			return true, 0
		}

		_, expires, found := l.counters.GetWithExpiration(key)
		if !found {
			return true, 0
		}
		return false, time.Until(expires)
	}
	return true, 0
}

// Middleware rejects requests over the window budget with 429 and Retry-After.
func (l *WindowLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)

		allowed, retry := l.Allow(ip)
		if !allowed {
			metrics.RateLimitedTotal.WithLabelValues(l.config.Name).Inc()
			slog.Warn("Rate limit exceeded",
				"limiter", l.config.Name,
				"ip", ip,
				"path", r.URL.Path,
			)

			seconds := max(int(math.Ceil(retry.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			respond.Error(w, http.StatusTooManyRequests, l.config.Message, domain.KindRateLimited)
			return
		}

		next.ServeHTTP(w, r)
	})
}
