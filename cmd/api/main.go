// Package main is the entry point for the ytstream API.
package main

import (
	"fmt"
	"os"

	"github.com/emanuelef/ytstream-api/internal/config"
	"github.com/emanuelef/ytstream-api/internal/infra/cache"
	"github.com/emanuelef/ytstream-api/internal/service/extractor"
	"github.com/emanuelef/ytstream-api/internal/service/pipeline"
	"github.com/emanuelef/ytstream-api/internal/service/resolver"
	"github.com/emanuelef/ytstream-api/internal/service/transcoder"
	"github.com/emanuelef/ytstream-api/pkg/logger"
	"github.com/emanuelef/ytstream-api/pkg/safeclient"
	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Global flags
var (
	flagExtractor string
	flagLogLevel  string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ytstream-api",
		Short:         "Stream YouTube videos as MP4 or MP3 over HTTP",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&flagExtractor, "extractor", "", "Extraction backend: youtube | ytdlp (overrides EXTRACTOR)")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug | info | warn | error (overrides LOG_LEVEL)")

	root.AddCommand(newServeCmd())
	root.AddCommand(newInfoCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})

	return root
}

// loadConfig reads the environment, applies CLI overrides and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(applyFlags)
	if err != nil {
		return nil, err
	}

	l := logger.Setup(cfg.LoggerConfig())
	if cfg.IsDevelopment() {
		l.Debug("Development mode", "extractor", cfg.Extractor, "trust_proxy", cfg.TrustProxy)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config) {
	if flagExtractor != "" {
		cfg.Extractor = flagExtractor
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
}

// app holds the wired services shared by every command.
type app struct {
	extractor extractor.Extractor
	cache     *cache.MetadataCache
	resolver  *resolver.Resolver
	pipeline  *pipeline.Pipeline
}

func newApp(cfg *config.Config) (*app, error) {
	ex, err := newExtractor(cfg)
	if err != nil {
		return nil, err
	}

	metaCache := cache.NewMetadataCache(cfg.CacheTTL, cfg.CacheCleanupInterval)

	return &app{
		extractor: ex,
		cache:     metaCache,
		resolver:  resolver.New(ex, metaCache, cfg.InfoTimeout),
		pipeline: pipeline.New(ex, transcoder.NewFFmpeg(cfg.FFmpegPath), pipeline.Config{
			DefaultAudioBitrate:     cfg.DefaultAudioBitrate,
			MaxConcurrentTranscodes: int64(cfg.MaxConcurrentTranscodes),
		}),
	}, nil
}

func newExtractor(cfg *config.Config) (extractor.Extractor, error) {
	switch cfg.Extractor {
	case config.ExtractorYouTube:
		return extractor.NewYouTube(safeclient.NewStreamingClient()), nil
	case config.ExtractorYtDlp:
		return extractor.NewYtDlp(cfg.YtDlpPath), nil
	default:
		return nil, fmt.Errorf("unknown extractor %q", cfg.Extractor)
	}
}
