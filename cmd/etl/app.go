package main

import (
	"context"
	"errors"
	"log/slog"

	kafkaadapter "github.com/couchcryptid/vibration-severity-etl/internal/adapter/kafka"
	"github.com/couchcryptid/vibration-severity-etl/internal/adapter/mapbox"
	mqttadapter "github.com/couchcryptid/vibration-severity-etl/internal/adapter/mqtt"
	s3adapter "github.com/couchcryptid/vibration-severity-etl/internal/adapter/s3"
	"github.com/couchcryptid/vibration-severity-etl/internal/config"
	"github.com/couchcryptid/vibration-severity-etl/internal/observability"
	"github.com/couchcryptid/vibration-severity-etl/internal/pipeline"
	"github.com/couchcryptid/vibration-severity-etl/internal/store"
)

// app holds what every subcommand needs: settings, logging, metrics and an
// open store. Sinks are attached only by commands that publish.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
	store   *store.Store
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	st, err := store.Open(ctx, store.Options{
		Driver:           cfg.DBDriver,
		Path:             cfg.DBPath,
		DSN:              cfg.DBDSN,
		BatchSize:        cfg.BatchSize,
		RequireRawParent: cfg.DBRequireParent,
	}, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, metrics: metrics, store: st}
	a.closers = append(a.closers, st.Close)
	return a, nil
}

// analyzer builds an Analyzer with every enabled sink attached.
func (a *app) analyzer() (*pipeline.Analyzer, error) {
	var opts []pipeline.Option

	if a.cfg.KafkaEnabled {
		w := kafkaadapter.NewWriter(a.cfg, a.logger)
		a.closers = append(a.closers, w.Close)
		opts = append(opts, pipeline.WithPublishers(w))
		a.logger.Info("kafka publishing enabled", "topic", a.cfg.KafkaTopic, "brokers", a.cfg.KafkaBrokers)
	}

	if a.cfg.MQTTEnabled {
		p, err := mqttadapter.Connect(a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		opts = append(opts, pipeline.WithPublishers(p))
	}

	if a.cfg.S3Enabled {
		u, err := s3adapter.NewUploader(a.cfg, a.logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithUploader(u))
		a.logger.Info("report upload enabled", "endpoint", a.cfg.S3Endpoint, "bucket", a.cfg.S3Bucket)
	}

	return pipeline.NewAnalyzer(a.store, a.cfg.ResultsDir, a.logger, a.metrics, opts...), nil
}

func (a *app) gpsProcessor() *pipeline.GPSProcessor {
	return pipeline.NewGPSProcessor(a.store, a.cfg.GPSTimeOffset, a.cfg.GPSMaxGap, a.logger, a.metrics)
}

func (a *app) severityMapper() *pipeline.SeverityMapper {
	return pipeline.NewSeverityMapper(a.store, mapbox.FromConfig(a.cfg, a.metrics, a.logger), a.logger)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withApp runs fn against a freshly wired app and closes it afterwards.
func withApp(ctx context.Context, fn func(*app) error) (err error) {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.logger.Error("shutdown error", "error", cerr)
		}
	}()
	return fn(a)
}
