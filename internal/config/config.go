// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/emanuelef/ytstream-api/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Extractor backends.
const (
	ExtractorYouTube = "youtube"
	ExtractorYtDlp   = "ytdlp"
)

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port            string        `envconfig:"PORT" default:"5000"`
	Env             string        `envconfig:"ENV" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat       string        `envconfig:"LOG_FORMAT"` // json or text; empty picks by Env
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"60s"` // cleared per media stream
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	TrustProxy      bool          `envconfig:"TRUST_PROXY" default:"false"`
	TrustedHops     int           `envconfig:"TRUSTED_PROXY_HOPS" default:"1"` // proxies appending to X-Forwarded-For

	// CORS
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"*"`
	CORSStrict     bool     `envconfig:"CORS_STRICT" default:"false"`

	// Metadata cache
	CacheTTL             time.Duration `envconfig:"CACHE_TTL" default:"24h"`
	CacheCleanupInterval time.Duration `envconfig:"CACHE_CLEANUP_INTERVAL" default:"10m"`

	// Rate limiting
	InfoRateLimitWindow    time.Duration `envconfig:"INFO_RATE_LIMIT_WINDOW" default:"5m"`
	InfoRateLimitMax       int           `envconfig:"INFO_RATE_LIMIT_MAX" default:"10"`
	InfoRateLimitMessage   string        `envconfig:"INFO_RATE_LIMIT_MESSAGE" default:"Too many requests, slow down."`
	DownloadRateLimitRPM   int           `envconfig:"DOWNLOAD_RATE_LIMIT_RPM" default:"30"`
	DownloadRateLimitBurst int           `envconfig:"DOWNLOAD_RATE_LIMIT_BURST" default:"5"`

	// Collaborators
	Extractor   string        `envconfig:"EXTRACTOR" default:"youtube"`
	YtDlpPath   string        `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	FFmpegPath  string        `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	InfoTimeout time.Duration `envconfig:"INFO_TIMEOUT" default:"30s"`

	// Downloads
	DefaultAudioBitrate     int `envconfig:"DEFAULT_AUDIO_BITRATE" default:"192"`
	MaxConcurrentTranscodes int `envconfig:"MAX_CONCURRENT_TRANSCODES" default:"4"`

	// Observability
	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load loads configuration from environment variables. Overrides run after the
// environment is read and before validation.
func Load(overrides ...func(*Config)) (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	for _, override := range overrides {
		override(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	if c.InfoRateLimitWindow <= 0 {
		errs = append(errs, errors.New("INFO_RATE_LIMIT_WINDOW must be positive"))
	}
	if c.InfoRateLimitMax < 1 {
		errs = append(errs, errors.New("INFO_RATE_LIMIT_MAX must be at least 1"))
	}
	if c.DownloadRateLimitRPM < 1 || c.DownloadRateLimitBurst < 1 {
		errs = append(errs, errors.New("DOWNLOAD_RATE_LIMIT_RPM and DOWNLOAD_RATE_LIMIT_BURST must be at least 1"))
	}
	if c.TrustProxy && c.TrustedHops < 1 {
		errs = append(errs, errors.New("TRUSTED_PROXY_HOPS must be at least 1 when TRUST_PROXY is set"))
	}
	if c.MaxConcurrentTranscodes < 1 {
		errs = append(errs, errors.New("MAX_CONCURRENT_TRANSCODES must be at least 1"))
	}
	if c.DefaultAudioBitrate < 1 {
		errs = append(errs, errors.New("DEFAULT_AUDIO_BITRATE must be positive"))
	}
	switch c.Extractor {
	case ExtractorYouTube, ExtractorYtDlp:
	default:
		errs = append(errs, fmt.Errorf("unknown EXTRACTOR %q", c.Extractor))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LoggerConfig returns the logger settings. Without LOG_FORMAT, development logs as text
// and every other environment as JSON.
func (c *Config) LoggerConfig() *logger.Config {
	format := c.LogFormat
	if format == "" {
		format = "json"
		if c.IsDevelopment() {
			format = "text"
		}
	}
	return &logger.Config{Level: c.LogLevel, Format: format}
}
