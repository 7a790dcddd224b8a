package http

import (
	"net/http"
	"time"

	"github.com/emanuelef/ytstream-api/internal/config"
	"github.com/emanuelef/ytstream-api/internal/transport/http/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RateLimiters holds the rate limiters for different endpoint types.
type RateLimiters struct {
	Info     *middleware.WindowLimiter // fixed window: metadata lookups
	Download *middleware.RateLimiter   // token bucket: long-running streams
}

// NewRateLimiters builds both limiters from configuration. Call Download.Stop on shutdown.
func NewRateLimiters(cfg *config.Config) *RateLimiters {
	return &RateLimiters{
		Info: middleware.NewWindowLimiter(middleware.WindowConfig{
			Name:    "info",
			Window:  cfg.InfoRateLimitWindow,
			Max:     cfg.InfoRateLimitMax,
			Message: cfg.InfoRateLimitMessage,
		}),
		Download: middleware.NewRateLimiter(middleware.RateLimitConfig{
			Name:              "download",
			RequestsPerMinute: cfg.DownloadRateLimitRPM,
			Burst:             cfg.DownloadRateLimitBurst,
			CleanupInterval:   10 * time.Minute,
		}),
	}
}

// NewRouter creates a new chi router with all routes and middleware configured.
// checker validates video URLs before any handler runs.
func NewRouter(cfg *config.Config, handlers *Handlers, checker middleware.URLChecker, limiters *RateLimiters) http.Handler {
	r := chi.NewRouter()

	// Basic middleware (applied to all routes)
	r.Use(chimiddleware.RequestID)
	if cfg.TrustProxy {
		r.Use(middleware.TrustedProxies(cfg.TrustedHops))
	}
	r.Use(chimiddleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300, // 5 minutes
	}))
	if cfg.CORSStrict {
		r.Use(middleware.RequireAllowedOrigin(cfg.AllowedOrigins))
	}

	// Health checks (no rate limiting)
	r.Get("/", handlers.HealthHandler)
	r.Get("/health", handlers.HealthHandler)

	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Metadata: buffered JSON, safe to compress and bound in time
		r.Group(func(r chi.Router) {
			r.Use(limiters.Info.Middleware)
			r.Use(chimiddleware.Timeout(cfg.InfoTimeout + 5*time.Second))
			r.Use(chimiddleware.Compress(5))
			r.Use(middleware.RequireVideoURL(checker))
			r.Get("/info", handlers.InfoHandler)
		})

		// Downloads: streamed, so no timeout or compression wrappers
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(limiters.Download))
			r.Use(middleware.RequireVideoURL(checker))
			r.Get("/download/mp4", handlers.DownloadMP4Handler)
			r.Get("/download/mp3", handlers.DownloadMP3Handler)
		})
	})

	r.NotFound(NotFoundHandler)
	r.MethodNotAllowed(MethodNotAllowedHandler)

	return r
}

// NewServer creates a new HTTP server. WriteTimeout applies to JSON responses; media
// streams clear their own write deadline.
func NewServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
