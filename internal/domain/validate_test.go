package domain

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	ts := time.Date(2025, 3, 23, 15, 27, 52, 0, time.UTC)
	key := KeyOf(ts)
	gps := func(lat, lon float64) GPSRawRecord {
		return GPSRawRecord{GPSPoint: GPSPoint{Timestamp: ts, Latitude: lat, Longitude: lon}, Key: key, FileName: "t.gpx"}
	}

	tests := []struct {
		name    string
		rec     interface{ Validate() error }
		wantErr bool
	}{
		{"raw ok", RawRecord{Key: key, FileName: "a.txt", RecordedAt: ts}, false},
		{"raw no file", RawRecord{Key: key, RecordedAt: ts}, true},
		{"raw key mismatch", RawRecord{Key: key + 1, FileName: "a.txt", RecordedAt: ts}, true},
		{"raw no timestamp", RawRecord{Key: key, FileName: "a.txt"}, true},
		{"result ok", ResultRecord{SecondBucket: SecondBucket{Key: key, SampleCount: 1}, FileName: "a.txt"}, false},
		{"result empty bucket", ResultRecord{SecondBucket: SecondBucket{Key: key}, FileName: "a.txt"}, true},
		{"gps ok", gps(31.2, 121.5), false},
		{"gps latitude", gps(91, 0), true},
		{"gps longitude", gps(0, -181), true},
		{"gps nan", gps(math.NaN(), 0), true},
		{"gps result ok", GPSResultRecord{Key: key, Timestamp: ts, Latitude: 1, Longitude: 1}, false},
		{"gps result key mismatch", GPSResultRecord{Key: key - 5, Timestamp: ts}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidRecord))
		})
	}
}
