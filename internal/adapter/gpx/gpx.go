// Package gpx reads GPS track points from GPX 1.1 files, including the
// myTracks speed, gradient, and length extensions.
package gpx

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/relvacode/iso8601"
)

type document struct {
	Tracks []struct {
		Segments []struct {
			Points []trackPoint `xml:"trkpt"`
		} `xml:"trkseg"`
	} `xml:"trk"`
}

type trackPoint struct {
	Lat        string `xml:"lat,attr"`
	Lon        string `xml:"lon,attr"`
	Ele        string `xml:"ele"`
	Time       string `xml:"time"`
	Extensions struct {
		Speed    string `xml:"speed"`
		Gradient string `xml:"gradient"`
		Length   string `xml:"length"`
	} `xml:"extensions"`
}

// ReadFile parses the GPX file at path.
func ReadFile(path string) ([]domain.GPSPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gpx: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read returns every track point in document order. A point without a valid
// position or time makes the whole file malformed; missing elevation and
// extension values are NaN.
func Read(r io.Reader) ([]domain.GPSPoint, error) {
	var doc document
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode gpx: %w", domain.ErrMalformedInput, err)
	}

	points := []domain.GPSPoint{}
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for i, tp := range seg.Points {
				p, err := tp.toPoint()
				if err != nil {
					return nil, fmt.Errorf("%w: track point %d: %w", domain.ErrMalformedInput, i, err)
				}
				points = append(points, p)
			}
		}
	}
	return points, nil
}

func (tp trackPoint) toPoint() (domain.GPSPoint, error) {
	lat, err := strconv.ParseFloat(strings.TrimSpace(tp.Lat), 64)
	if err != nil {
		return domain.GPSPoint{}, fmt.Errorf("lat: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(tp.Lon), 64)
	if err != nil {
		return domain.GPSPoint{}, fmt.Errorf("lon: %w", err)
	}
	raw := strings.TrimSpace(tp.Time)
	if raw == "" {
		return domain.GPSPoint{}, fmt.Errorf("time: missing")
	}
	// Zoneless times are read as UTC.
	ts, err := iso8601.ParseString(raw)
	if err != nil {
		return domain.GPSPoint{}, fmt.Errorf("time: %w", err)
	}
	return domain.GPSPoint{
		Timestamp: ts.UTC(),
		Latitude:  lat,
		Longitude: lon,
		Elevation: optional(tp.Ele),
		Speed:     optional(tp.Extensions.Speed),
		Gradient:  optional(tp.Extensions.Gradient),
		Length:    optional(tp.Extensions.Length),
	}, nil
}

func optional(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}
