package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"
)

// recordedAtLayout is the text form of record timestamps, identical across drivers.
const recordedAtLayout = "2006-01-02T15:04:05.000000"

// nullFloat stores NaN as NULL; not every driver round-trips NaN.
func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func formatTime(t time.Time) string {
	return t.UTC().Format(recordedAtLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(recordedAtLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse recorded_at %q: %w", s, err)
	}
	return t, nil
}

func unixTime(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
