package export

import (
	"encoding/json"
	"math"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
)

// MaxLineGap is the largest gap between consecutive points that is still
// drawn as a connecting line.
const MaxLineGap = 60 * time.Second

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON feature.
type Feature struct {
	Type       string         `json:"type"`
	Geometry   Geometry       `json:"geometry"`
	Properties map[string]any `json:"properties"`
}

// Geometry is a Point or LineString. Coordinates are [lon, lat] pairs.
type Geometry struct {
	Type        string `json:"type"`
	Coordinates any    `json:"coordinates"`
}

// SeverityGeoJSON builds the severity map layer: one point per joined second
// and a line between consecutive points less than MaxLineGap apart.
// Percentages are relative to maxSeverity, the largest score on record, so
// a narrowed range keeps the scale of the full dataset.
func SeverityGeoJSON(points []domain.PlacedPoint, maxSeverity float64) FeatureCollection {
	fc := FeatureCollection{Type: "FeatureCollection", Features: []Feature{}}
	pct := percentages(points, maxSeverity)

	for i, p := range points {
		props := map[string]any{
			"timestamp":          p.Timestamp.UTC().Format(TimestampLayout),
			"severity_score":     jsonFloat(p.SeverityScore),
			"percentage_score":   pct[i],
			"velocity_magnitude": jsonFloat(p.VelocityMagnitude),
		}
		if p.Place != "" {
			props["place"] = p.Place
		}
		fc.Features = append(fc.Features, Feature{
			Type:       "Feature",
			Geometry:   Geometry{Type: "Point", Coordinates: []float64{p.Longitude, p.Latitude}},
			Properties: props,
		})
	}

	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		if cur.Timestamp.Sub(prev.Timestamp) >= MaxLineGap {
			continue
		}
		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			Geometry: Geometry{Type: "LineString", Coordinates: [][]float64{
				{prev.Longitude, prev.Latitude},
				{cur.Longitude, cur.Latitude},
			}},
			Properties: map[string]any{
				"start_time":       prev.Timestamp.UTC().Format(TimestampLayout),
				"end_time":         cur.Timestamp.UTC().Format(TimestampLayout),
				"percentage_score": (pct[i-1] + pct[i]) / 2,
			},
		})
	}
	return fc
}

// Marshal renders the collection as JSON.
func (fc FeatureCollection) Marshal() ([]byte, error) {
	return json.Marshal(fc)
}

// percentages scales severities against mx, clipped to [0, 100].
// Everything is 0 when mx is not positive.
func percentages(points []domain.PlacedPoint, mx float64) []float64 {
	out := make([]float64, len(points))
	if math.IsNaN(mx) || mx <= 0 {
		return out
	}
	for i, p := range points {
		if math.IsNaN(p.SeverityScore) {
			continue
		}
		out[i] = math.Min(100, math.Max(0, p.SeverityScore/mx*100))
	}
	return out
}

// jsonFloat maps NaN to null; encoding/json rejects NaN.
func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
