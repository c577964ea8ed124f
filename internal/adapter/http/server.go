// Package http serves health, readiness, metrics, and the read-only JSON API
// over stored vibration and GPS records.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/export"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecordReader is the store surface the API reads from.
type RecordReader interface {
	sharedobs.ReadinessChecker
	RawByFile(ctx context.Context, fileName string) ([]domain.RawRecord, error)
	ResultsByFile(ctx context.Context, fileName string) ([]domain.ResultRecord, error)
	GetResult(ctx context.Context, key domain.EpochKey) (domain.ResultRecord, error)
	ResultsInRange(ctx context.Context, start, end domain.EpochKey) ([]domain.ResultRecord, error)
	GPSResultsInRange(ctx context.Context, start, end domain.EpochKey) ([]domain.GPSResultRecord, error)
}

// LayerBuilder renders the severity map layer for a key range.
type LayerBuilder interface {
	Layer(ctx context.Context, start, end domain.EpochKey) (export.FeatureCollection, error)
}

// Server exposes health, readiness, metrics, and API endpoints.
type Server struct {
	httpServer *http.Server
	records    RecordReader
	layers     LayerBuilder
	logger     *slog.Logger
}

// NewServer creates an HTTP server. Readiness is the store's.
func NewServer(addr string, records RecordReader, layers LayerBuilder, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		records: records,
		layers:  layers,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(records))
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/v1/files/{name}/results", s.handleFileResults)
	mux.HandleFunc("GET /api/v1/files/{name}/raw", s.handleFileRaw)
	mux.HandleFunc("GET /api/v1/results", s.handleResultRange)
	mux.HandleFunc("GET /api/v1/results/{key}", s.handleResult)
	mux.HandleFunc("GET /api/v1/gps", s.handleGPS)
	mux.HandleFunc("GET /api/v1/severity", s.handleSeverity)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
