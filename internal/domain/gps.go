package domain

import (
	"math"
	"time"
)

// EarthRadiusMeters is the mean Earth radius used for haversine distances.
const EarthRadiusMeters = 6371000.0

// DefaultMaxGap is the widest hole between two fixes that FillGaps bridges.
const DefaultMaxGap = 60 * time.Second

// TrackFix is a GPS position keyed by second, the unit FillGaps and
// DeriveVelocities work on.
type TrackFix struct {
	Key          EpochKey
	Timestamp    time.Time
	Latitude     float64
	Longitude    float64
	Interpolated bool
}

// FixesFromRaw converts raw GPS records, assumed ordered by key, to fixes.
func FixesFromRaw(records []GPSRawRecord) []TrackFix {
	fixes := make([]TrackFix, 0, len(records))
	for _, r := range records {
		fixes = append(fixes, TrackFix{
			Key:       r.Key,
			Timestamp: r.Timestamp,
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
		})
	}
	return fixes
}

// FillGaps inserts one fix per missing second between consecutive fixes whose
// hole is at most maxGap, interpolating latitude and longitude linearly.
// Wider holes are left alone. The input must be ordered by key.
func FillGaps(fixes []TrackFix, maxGap time.Duration) []TrackFix {
	if len(fixes) < 2 {
		return append([]TrackFix(nil), fixes...)
	}
	limit := int64(maxGap / time.Second)

	out := make([]TrackFix, 0, len(fixes))
	for i, cur := range fixes {
		out = append(out, cur)
		if i == len(fixes)-1 {
			break
		}
		next := fixes[i+1]
		missing := int64(next.Key-cur.Key) - 1
		if missing <= 0 || missing > limit {
			continue
		}

		steps := float64(missing + 1)
		latStep := (next.Latitude - cur.Latitude) / steps
		lonStep := (next.Longitude - cur.Longitude) / steps
		for j := int64(1); j <= missing; j++ {
			k := cur.Key + EpochKey(j)
			out = append(out, TrackFix{
				Key:          k,
				Timestamp:    cur.Timestamp.Add(time.Duration(j) * time.Second),
				Latitude:     cur.Latitude + latStep*float64(j),
				Longitude:    cur.Longitude + lonStep*float64(j),
				Interpolated: true,
			})
		}
	}
	return out
}

// DeriveVelocities computes speed and heading between each fix and its
// predecessor. The first fix takes the values of the second. Fixes with a
// non-increasing key get zero velocity.
func DeriveVelocities(fixes []TrackFix) []GPSResultRecord {
	out := make([]GPSResultRecord, len(fixes))
	now := Now()
	for i, f := range fixes {
		out[i] = GPSResultRecord{
			Key:       f.Key,
			Timestamp: f.Timestamp,
			Latitude:  f.Latitude,
			Longitude: f.Longitude,
			CreatedAt: now,
		}
		if i == 0 {
			continue
		}
		prev := fixes[i-1]
		dt := float64(f.Key - prev.Key)
		if dt <= 0 {
			continue
		}
		dist, heading := HaversineHeading(prev.Latitude, prev.Longitude, f.Latitude, f.Longitude)
		out[i].VelocityMagnitude = dist / dt
		out[i].VelocityDirection = heading
	}
	if len(out) > 1 {
		out[0].VelocityMagnitude = out[1].VelocityMagnitude
		out[0].VelocityDirection = out[1].VelocityDirection
	}
	return out
}

// HaversineHeading returns the great-circle distance in metres between two
// positions and the heading from the first to the second in degrees from
// north, normalised to [0, 360). The heading is taken on the raw
// latitude/longitude deltas.
func HaversineHeading(lat1, lon1, lat2, lon2 float64) (float64, float64) {
	phi1, phi2 := radians(lat1), radians(lat2)
	dLat := phi2 - phi1
	dLon := radians(lon2) - radians(lon1)

	a := math.Pow(math.Sin(dLat/2), 2) + math.Cos(phi1)*math.Cos(phi2)*math.Pow(math.Sin(dLon/2), 2)
	dist := 2 * math.Asin(math.Sqrt(a)) * EarthRadiusMeters

	heading := math.Mod(math.Atan2(dLon, dLat)*180/math.Pi+360, 360)
	return dist, heading
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
