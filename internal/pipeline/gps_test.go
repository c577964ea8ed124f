package pipeline_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/observability"
	"github.com/couchcryptid/vibration-severity-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memGPSStore struct {
	mu      sync.Mutex
	raw     map[domain.EpochKey]domain.GPSRawRecord
	results map[domain.EpochKey]domain.GPSResultRecord
	clears  int
}

func newMemGPSStore() *memGPSStore {
	return &memGPSStore{
		raw:     make(map[domain.EpochKey]domain.GPSRawRecord),
		results: make(map[domain.EpochKey]domain.GPSResultRecord),
	}
}

func (m *memGPSStore) HasGPSFile(_ context.Context, fileName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.raw {
		if r.FileName == fileName {
			return true, nil
		}
	}
	return false, nil
}

func (m *memGPSStore) UpsertGPSRawBatch(_ context.Context, recs []domain.GPSRawRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.raw[r.Key] = r
	}
	return nil
}

func (m *memGPSStore) GPSRawInRange(_ context.Context, start, end domain.EpochKey) ([]domain.GPSRawRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []domain.GPSRawRecord{}
	for k, r := range m.raw {
		if k >= start && k <= end {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memGPSStore) ClearGPSResults(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.results))
	m.results = make(map[domain.EpochKey]domain.GPSResultRecord)
	m.clears++
	return n, nil
}

func (m *memGPSStore) UpsertGPSResultBatch(_ context.Context, recs []domain.GPSResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		m.results[r.Key] = r
	}
	return nil
}

const rideGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="1.3000" lon="103.8000"><ele>10</ele><time>2025-03-23T07:27:50Z</time></trkpt>
    <trkpt lat="1.3003" lon="103.8000"><ele>10</ele><time>2025-03-23T07:27:53Z</time></trkpt>
  </trkseg></trk>
</gpx>`

func TestGPSProcessor_ImportDir(t *testing.T) {
	fixClock(t)
	dir := t.TempDir()
	writeFile(t, dir, "ride.gpx", rideGPX)
	writeFile(t, dir, "broken.gpx", "<gpx><trk><trkseg><trkpt lat=\"x\" lon=\"1\"/></trkseg></trk></gpx>")
	writeFile(t, dir, "readme.txt", "not a track")

	st := newMemGPSStore()
	metrics := observability.NewMetricsForTesting()
	g := pipeline.NewGPSProcessor(st, 8*time.Hour, domain.DefaultMaxGap, discardLogger(), metrics)

	summary, err := g.ImportDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, errors.Is(summary.Errors[0].Err, domain.ErrMalformedInput))

	require.Len(t, st.raw, 2)
	shifted := domain.KeyOf(time.Date(2025, 3, 23, 15, 27, 50, 0, time.UTC))
	rec, ok := st.raw[shifted]
	require.True(t, ok, "time offset applied before keying")
	assert.Equal(t, "ride.gpx", rec.FileName)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.GPSPoints.WithLabelValues("imported")))
	assert.Equal(t, 1, testutil.CollectAndCount(metrics.StoreWriteDuration), "gps_raw write timed")

	summary, err = g.ImportDir(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
}

func TestGPSProcessor_Derive(t *testing.T) {
	fixClock(t)
	dir := t.TempDir()
	writeFile(t, dir, "ride.gpx", rideGPX)

	st := newMemGPSStore()
	st.results[1] = domain.GPSResultRecord{Key: 1}
	metrics := observability.NewMetricsForTesting()
	g := pipeline.NewGPSProcessor(st, 0, domain.DefaultMaxGap, discardLogger(), metrics)
	ctx := context.Background()

	_, err := g.ImportDir(ctx, dir)
	require.NoError(t, err)

	report, err := g.Derive(ctx)
	require.NoError(t, err)
	assert.Equal(t, pipeline.DeriveReport{Raw: 2, Interpolated: 2, Derived: 4, Cleared: 1}, report)

	require.Len(t, st.results, 4)
	_, stale := st.results[1]
	assert.False(t, stale, "previous derived set is replaced")

	start := domain.KeyOf(time.Date(2025, 3, 23, 7, 27, 50, 0, time.UTC))
	for k := start; k < start+4; k++ {
		r, ok := st.results[k]
		require.True(t, ok)
		assert.InDelta(t, 0.0, r.VelocityDirection, 1e-6, "track heads due north")
		assert.InDelta(t, 11.12, r.VelocityMagnitude, 0.05)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.GPSPoints.WithLabelValues("interpolated")))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.StoreWriteDuration), "gps_raw and gps_results writes timed")
}

func TestGPSProcessor_DeriveEmpty(t *testing.T) {
	st := newMemGPSStore()
	g := pipeline.NewGPSProcessor(st, 0, domain.DefaultMaxGap, discardLogger(), observability.NewMetricsForTesting())

	report, err := g.Derive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, pipeline.DeriveReport{}, report)
	assert.Equal(t, 1, st.clears)
}
