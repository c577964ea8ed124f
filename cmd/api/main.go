// Command api serves stored vibration results, GPS records and the severity
// map layer over HTTP, alongside health and Prometheus endpoints.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/vibration-severity-etl/internal/adapter/http"
	"github.com/couchcryptid/vibration-severity-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/vibration-severity-etl/internal/config"
	"github.com/couchcryptid/vibration-severity-etl/internal/observability"
	"github.com/couchcryptid/vibration-severity-etl/internal/pipeline"
	"github.com/couchcryptid/vibration-severity-etl/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.Options{
		Driver:           cfg.DBDriver,
		Path:             cfg.DBPath,
		DSN:              cfg.DBDSN,
		BatchSize:        cfg.BatchSize,
		RequireRawParent: cfg.DBRequireParent,
	}, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		stop()
		os.Exit(1)
	}

	mapper := pipeline.NewSeverityMapper(st, mapbox.FromConfig(cfg, metrics, logger), logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, st, mapper, logger)

	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := st.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}
