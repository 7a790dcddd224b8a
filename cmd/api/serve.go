package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/emanuelef/ytstream-api/internal/infra/metrics"
	transport "github.com/emanuelef/ytstream-api/internal/transport/http"
	"github.com/spf13/cobra"
)

var flagPort string

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if flagPort != "" {
				cfg.Port = flagPort
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			if cfg.MetricsEnabled {
				if err := metrics.RegisterCacheEntries(a.cache.ItemCount); err != nil {
					slog.Warn("Cache size metric not registered", "error", err)
				}
			}

			limiters := transport.NewRateLimiters(cfg)
			defer limiters.Download.Stop()

			handler := transport.NewRouter(cfg, transport.NewHandlers(a.resolver, a.pipeline), a.extractor, limiters)
			server := transport.NewServer(cfg, handler)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return run(ctx, server, cfg.ShutdownTimeout, a.extractor.Name())
		},
	}

	cmd.Flags().StringVar(&flagPort, "port", "", "Listen port (overrides PORT)")
	return cmd
}

// run serves until ctx is done, then drains in-flight requests for up to grace.
func run(ctx context.Context, server *http.Server, grace time.Duration, backend string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "addr", server.Addr, "extractor", backend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server error", "error", err)
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Forced shutdown", "error", err)
		return err
	}

	slog.Info("Server stopped")
	return nil
}
