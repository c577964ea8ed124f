package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/adapter/gpx"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/observability"
)

// TrackExt is the extension of GPS tracks picked up by ImportDir.
const TrackExt = ".gpx"

// GPSStore persists raw and derived GPS fixes.
type GPSStore interface {
	HasGPSFile(ctx context.Context, fileName string) (bool, error)
	UpsertGPSRawBatch(ctx context.Context, recs []domain.GPSRawRecord) error
	GPSRawInRange(ctx context.Context, start, end domain.EpochKey) ([]domain.GPSRawRecord, error)
	ClearGPSResults(ctx context.Context) (int64, error)
	UpsertGPSResultBatch(ctx context.Context, recs []domain.GPSResultRecord) error
}

// DeriveReport counts the fixes handled by Derive.
type DeriveReport struct {
	Raw          int
	Interpolated int
	Derived      int
	Cleared      int64
}

// GPSProcessor imports GPX tracks and derives velocities from them.
type GPSProcessor struct {
	store      GPSStore
	timeOffset time.Duration
	maxGap     time.Duration
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewGPSProcessor creates a GPSProcessor. timeOffset is added to every GPX
// time on import; gaps up to maxGap are interpolated on derive.
func NewGPSProcessor(store GPSStore, timeOffset, maxGap time.Duration, logger *slog.Logger, metrics *observability.Metrics) *GPSProcessor {
	return &GPSProcessor{
		store:      store,
		timeOffset: timeOffset,
		maxGap:     maxGap,
		logger:     logger,
		metrics:    metrics,
	}
}

// ImportDir stores the points of every track in dir whose file name is not
// stored yet.
func (g *GPSProcessor) ImportDir(ctx context.Context, dir string) (BatchSummary, error) {
	paths, err := listFiles(dir, TrackExt)
	if err != nil {
		return BatchSummary{}, err
	}
	g.logger.Info("gps import started", "dir", dir, "files", len(paths))

	var summary BatchSummary
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		name := filepath.Base(path)
		skipped, err := g.importFile(ctx, path)
		summary.record(name, skipped, err)
		if err != nil {
			g.logger.Error("gps import failed", "file", name, "error", err)
		}
	}

	g.logger.Info("gps import finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (g *GPSProcessor) importFile(ctx context.Context, path string) (skipped bool, err error) {
	name := filepath.Base(path)
	seen, err := g.store.HasGPSFile(ctx, name)
	if err != nil {
		return false, err
	}
	if seen {
		g.logger.Info("gps file already imported, skipping", "file", name)
		return true, nil
	}

	points, err := gpx.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", name, err)
	}

	now := domain.Now()
	recs := make([]domain.GPSRawRecord, len(points))
	for i, p := range points {
		p.Timestamp = p.Timestamp.Add(g.timeOffset)
		recs[i] = domain.GPSRawRecord{
			GPSPoint:  p,
			Key:       domain.KeyOf(p.Timestamp),
			FileName:  name,
			CreatedAt: now,
		}
	}
	if err := timedWrite(g.metrics, "gps_raw", func() error { return g.store.UpsertGPSRawBatch(ctx, recs) }); err != nil {
		return false, fmt.Errorf("store gps points of %s: %w", name, err)
	}
	g.metrics.GPSPoints.WithLabelValues("imported").Add(float64(len(recs)))
	g.logger.Info("gps file imported", "file", name, "points", len(recs))
	return false, nil
}

// Derive rebuilds the derived GPS family from every raw fix: gaps are filled,
// velocities computed, and the previous derived set replaced.
func (g *GPSProcessor) Derive(ctx context.Context) (DeriveReport, error) {
	raw, err := g.store.GPSRawInRange(ctx, domain.MinKey, domain.MaxKey)
	if err != nil {
		return DeriveReport{}, fmt.Errorf("load gps points: %w", err)
	}
	fixes := domain.FillGaps(domain.FixesFromRaw(raw), g.maxGap)
	derived := domain.DeriveVelocities(fixes)

	report := DeriveReport{Raw: len(raw), Interpolated: len(fixes) - len(raw), Derived: len(derived)}

	report.Cleared, err = g.store.ClearGPSResults(ctx)
	if err != nil {
		return report, err
	}
	if err := timedWrite(g.metrics, "gps_results", func() error { return g.store.UpsertGPSResultBatch(ctx, derived) }); err != nil {
		return report, fmt.Errorf("store derived gps points: %w", err)
	}

	g.metrics.GPSPoints.WithLabelValues("interpolated").Add(float64(report.Interpolated))
	g.metrics.GPSPoints.WithLabelValues("derived").Add(float64(report.Derived))
	g.logger.Info("gps velocities derived",
		"raw", report.Raw,
		"interpolated", report.Interpolated,
		"derived", report.Derived,
		"cleared", report.Cleared,
	)
	return report, nil
}
