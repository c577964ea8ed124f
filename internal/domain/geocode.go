package domain

import (
	"context"
	"log/slog"
)

// PlacedPoint is a SeverityPoint labelled with the nearest named place.
type PlacedPoint struct {
	SeverityPoint
	Place string
}

// LabelPoints reverse-geocodes each point. A nil geocoder or a failed lookup
// leaves the label empty; lookups stop once ctx is done.
func LabelPoints(ctx context.Context, points []SeverityPoint, geocoder Geocoder, logger *slog.Logger) []PlacedPoint {
	out := make([]PlacedPoint, len(points))
	for i, p := range points {
		out[i] = PlacedPoint{SeverityPoint: p}
		if geocoder == nil || ctx.Err() != nil {
			continue
		}
		place, err := geocoder.ReverseGeocode(ctx, p.Latitude, p.Longitude)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"epoch_seconds", int64(p.Key),
				"lat", p.Latitude,
				"lon", p.Longitude,
				"error", err,
			)
			continue
		}
		out[i].Place = place.PlaceName
	}
	return out
}
