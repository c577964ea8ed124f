package domain

import (
	"math"
	"time"
)

// EpochKey is whole seconds since the Unix epoch. It is the primary key of
// every persisted record family.
type EpochKey int64

// Full key range, for callers that want every row of a family.
const (
	MinKey EpochKey = math.MinInt64
	MaxKey EpochKey = math.MaxInt64
)

// Instant is anything that can be normalised to an EpochKey: a timestamp or
// an already converted epoch integer.
type Instant interface {
	time.Time | int64
}

// KeyOf normalises a timestamp or epoch integer to an EpochKey. Timestamps
// are truncated to the second.
func KeyOf[T Instant](v T) EpochKey {
	switch x := any(v).(type) {
	case time.Time:
		return EpochKey(x.Unix())
	case int64:
		return EpochKey(x)
	}
	return 0
}

// Time returns the key as a UTC instant.
func (k EpochKey) Time() time.Time {
	return time.Unix(int64(k), 0).UTC()
}

// RawSample is one row of a sensor log.
type RawSample struct {
	Timestamp   time.Time
	SpeedX      float64
	SpeedY      float64
	SpeedZ      float64
	DispX       float64
	DispY       float64
	DispZ       float64
	Temperature float64 // NaN when absent
	Level       float64
}

// BucketKey is the sample's timestamp truncated to the second.
func (s RawSample) BucketKey() EpochKey {
	return KeyOf(s.Timestamp)
}

// VibrationLevel is the Euclidean magnitude of the three velocity axes.
func VibrationLevel(sx, sy, sz float64) float64 {
	return math.Sqrt(sx*sx + sy*sy + sz*sz)
}

// SecondBucket holds the statistics of all samples sharing one second.
type SecondBucket struct {
	Key             EpochKey
	SampleCount     int
	MeanLevel       float64
	MaxLevel        float64
	StdLevel        float64
	MeanDispX       float64
	MeanDispY       float64
	MeanDispZ       float64
	MaxDispX        float64
	MaxDispY        float64
	MaxDispZ        float64
	MeanTemperature float64
	VelocityScore   float64
	MeanDisp        float64
	SeverityScore   float64
}

// Timestamp returns the start of the bucket's second.
func (b SecondBucket) Timestamp() time.Time {
	return b.Key.Time()
}

// RawRecord is the persisted form of a RawSample, tagged with its source file.
type RawRecord struct {
	Key         EpochKey
	FileName    string
	RecordedAt  time.Time
	SpeedX      float64
	SpeedY      float64
	SpeedZ      float64
	DispX       float64
	DispY       float64
	DispZ       float64
	Temperature float64
	CreatedAt   time.Time
}

// ResultRecord is the persisted form of a SecondBucket. Key doubles as the
// logical reference to the raw record of the same second and file.
type ResultRecord struct {
	SecondBucket
	FileName  string
	CreatedAt time.Time
}

// RawKey is the key of the raw record this result was derived from.
func (r ResultRecord) RawKey() EpochKey {
	return r.Key
}

// GPSPoint is one fix read from a GPX track.
type GPSPoint struct {
	Timestamp time.Time
	Latitude  float64
	Longitude float64
	Elevation float64
	// Extension values, NaN when the track does not carry them.
	Speed    float64
	Gradient float64
	Length   float64
}

// GPSRawRecord is the persisted form of a GPSPoint.
type GPSRawRecord struct {
	GPSPoint
	Key       EpochKey
	FileName  string
	CreatedAt time.Time
}

// GPSResultRecord is a fix with derived velocity. Interpolated fixes have no
// raw counterpart.
type GPSResultRecord struct {
	Key               EpochKey
	Timestamp         time.Time
	Latitude          float64
	Longitude         float64
	VelocityMagnitude float64 // metres per second
	VelocityDirection float64 // degrees clockwise from north, [0, 360)
	CreatedAt         time.Time
}

// SeverityPoint is a derived fix joined with the vibration result of the same
// second.
type SeverityPoint struct {
	Key               EpochKey
	Timestamp         time.Time
	Latitude          float64
	Longitude         float64
	VelocityMagnitude float64
	SeverityScore     float64
}
