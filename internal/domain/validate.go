package domain

import (
	"fmt"
	"math"
)

// Validate checks a raw record before it is written.
func (r RawRecord) Validate() error {
	if r.FileName == "" {
		return fmt.Errorf("%w: raw record %d has no file name", ErrInvalidRecord, r.Key)
	}
	if r.RecordedAt.IsZero() {
		return fmt.Errorf("%w: raw record %d has no timestamp", ErrInvalidRecord, r.Key)
	}
	if KeyOf(r.RecordedAt) != r.Key {
		return fmt.Errorf("%w: raw record key %d does not match timestamp %s", ErrInvalidRecord, r.Key, r.RecordedAt)
	}
	return nil
}

// Validate checks a result record before it is written.
func (r ResultRecord) Validate() error {
	if r.FileName == "" {
		return fmt.Errorf("%w: result record %d has no file name", ErrInvalidRecord, r.Key)
	}
	if r.SampleCount <= 0 {
		return fmt.Errorf("%w: result record %d has sample count %d", ErrInvalidRecord, r.Key, r.SampleCount)
	}
	return nil
}

// Validate checks a raw GPS record before it is written.
func (r GPSRawRecord) Validate() error {
	if r.FileName == "" {
		return fmt.Errorf("%w: gps record %d has no file name", ErrInvalidRecord, r.Key)
	}
	if KeyOf(r.Timestamp) != r.Key {
		return fmt.Errorf("%w: gps record key %d does not match timestamp %s", ErrInvalidRecord, r.Key, r.Timestamp)
	}
	return validatePosition(r.Key, r.Latitude, r.Longitude)
}

// Validate checks a derived GPS record before it is written.
func (r GPSResultRecord) Validate() error {
	if KeyOf(r.Timestamp) != r.Key {
		return fmt.Errorf("%w: gps result key %d does not match timestamp %s", ErrInvalidRecord, r.Key, r.Timestamp)
	}
	return validatePosition(r.Key, r.Latitude, r.Longitude)
}

func validatePosition(key EpochKey, lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: record %d latitude %v out of range", ErrInvalidRecord, key, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: record %d longitude %v out of range", ErrInvalidRecord, key, lon)
	}
	return nil
}
