package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/export"
)

// TrackSource yields derived fixes joined with vibration results, and the
// largest severity on record for scaling.
type TrackSource interface {
	SeverityTrack(ctx context.Context, start, end domain.EpochKey) ([]domain.SeverityPoint, error)
	MaxSeverity(ctx context.Context) (float64, bool, error)
}

// SeverityMapper builds the GeoJSON severity layer, labelling points with
// place names when a geocoder is configured.
type SeverityMapper struct {
	source   TrackSource
	geocoder domain.Geocoder
	logger   *slog.Logger
}

// NewSeverityMapper creates a SeverityMapper. Pass a nil geocoder to leave
// points unlabelled.
func NewSeverityMapper(source TrackSource, geocoder domain.Geocoder, logger *slog.Logger) *SeverityMapper {
	return &SeverityMapper{source: source, geocoder: geocoder, logger: logger}
}

// Layer returns the severity layer for keys in [start, end].
func (m *SeverityMapper) Layer(ctx context.Context, start, end domain.EpochKey) (export.FeatureCollection, error) {
	points, err := m.source.SeverityTrack(ctx, start, end)
	if err != nil {
		return export.FeatureCollection{}, fmt.Errorf("load severity track: %w", err)
	}
	// mx is 0 when nothing is scored, which zeroes every percentage.
	mx, _, err := m.source.MaxSeverity(ctx)
	if err != nil {
		return export.FeatureCollection{}, fmt.Errorf("load max severity: %w", err)
	}
	placed := domain.LabelPoints(ctx, points, m.geocoder, m.logger)
	return export.SeverityGeoJSON(placed, mx), nil
}

// FullLayer returns the severity layer over every stored second.
func (m *SeverityMapper) FullLayer(ctx context.Context) (export.FeatureCollection, error) {
	return m.Layer(ctx, domain.MinKey, domain.MaxKey)
}
