package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/observability"
	"github.com/couchcryptid/vibration-severity-etl/internal/pipeline"
	"github.com/couchcryptid/vibration-severity-etl/internal/store"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type memStore struct {
	mu        sync.Mutex
	raw       map[domain.EpochKey]domain.RawRecord
	results   map[domain.EpochKey]domain.ResultRecord
	writeErr  error
	rangeErr  error
	rawWrites int
}

func newMemStore() *memStore {
	return &memStore{
		raw:     make(map[domain.EpochKey]domain.RawRecord),
		results: make(map[domain.EpochKey]domain.ResultRecord),
	}
}

func (m *memStore) UpsertRawBatch(_ context.Context, recs []domain.RawRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.rawWrites++
	for _, r := range recs {
		m.raw[r.Key] = r
	}
	return nil
}

func (m *memStore) UpsertResultBatch(_ context.Context, recs []domain.ResultRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	for _, r := range recs {
		m.results[r.Key] = r
	}
	return nil
}

func (m *memStore) FileKeyRange(_ context.Context, fileName string) (first, last domain.EpochKey, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rangeErr != nil {
		return 0, 0, false, m.rangeErr
	}
	for k, r := range m.raw {
		if r.FileName != fileName {
			continue
		}
		if !ok || k < first {
			first = k
		}
		if !ok || k > last {
			last = k
		}
		ok = true
	}
	return first, last, ok, nil
}

type mockPublisher struct {
	err   error
	calls int
	got   []domain.ResultRecord
}

func (m *mockPublisher) Name() string { return "mock" }

func (m *mockPublisher) Publish(_ context.Context, _ string, results []domain.ResultRecord) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, results...)
	return nil
}

type mockUploader struct {
	err   error
	paths []string
}

func (m *mockUploader) Upload(_ context.Context, path string) error {
	m.paths = append(m.paths, path)
	return m.err
}

// --- helpers ---

const logHeader = "time\tSpeedX(mm/s)\tSpeedY(mm/s)\tSpeedZ(mm/s)\tDisplacementX(um)\tDisplacementY(um)\tDisplacementZ(um)\tTemperature(°C)\n"

// twoSecondLog spans two seconds; the first second holds two samples.
const twoSecondLog = logHeader +
	"2025-03-23 15:27:52.100\t3\t4\t0\t10\t20\t30\t25\n" +
	"2025-03-23 15:27:52.600\t1\t0\t0\t2\t4\t6\t27\n" +
	"2025-03-23 15:27:53.000\t0\t0\t2\t1\t1\t1\t26\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func fixClock(t *testing.T) time.Time {
	t.Helper()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(now))
	t.Cleanup(func() { domain.SetClock(nil) })
	return now
}

// --- tests ---

func TestAnalyzeFile_HappyPath(t *testing.T) {
	created := fixClock(t)
	dataDir, resultsDir := t.TempDir(), t.TempDir()
	path := writeFile(t, dataDir, "run-01.txt", twoSecondLog)

	st := newMemStore()
	pub := &mockPublisher{}
	up := &mockUploader{}
	metrics := observability.NewMetricsForTesting()
	a := pipeline.NewAnalyzer(st, resultsDir, discardLogger(), metrics,
		pipeline.WithPublishers(pub), pipeline.WithUploader(up))

	report, err := a.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "run-01.txt", report.FileName)
	assert.Equal(t, 3, report.Samples)
	assert.Equal(t, 2, report.Buckets)
	assert.Equal(t, 1, report.Collapsed)
	assert.Equal(t, filepath.Join(resultsDir, "run-01_results.csv"), report.ReportPath)

	require.Len(t, st.raw, 2)
	require.Len(t, st.results, 2)
	first := domain.KeyOf(time.Date(2025, 3, 23, 15, 27, 52, 0, time.UTC))
	assert.Equal(t, 1.0, st.raw[first].SpeedX, "last sample of the second wins")
	assert.Equal(t, 2, st.results[first].SampleCount)
	assert.Equal(t, created, st.results[first].CreatedAt)
	assert.Equal(t, "run-01.txt", st.results[first+1].FileName)

	csv, err := os.ReadFile(report.ReportPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "2025-03-23 15:27:52,3,5,"))

	assert.Len(t, pub.got, 2)
	assert.Equal(t, []string{report.ReportPath}, up.paths)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SamplesRead))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.BucketsProduced))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SamplesCollapsed))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReportUploads.WithLabelValues("success")))
}

func TestAnalyzeFile_MalformedLeavesStoreUntouched(t *testing.T) {
	dataDir := t.TempDir()
	path := writeFile(t, dataDir, "bad.txt", "time\tSpeedX(mm/s)\n2025-03-23 15:27:52\t1\n")

	st := newMemStore()
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), observability.NewMetricsForTesting())

	_, err := a.AnalyzeFile(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrMalformedInput))
	assert.Zero(t, st.rawWrites)
	assert.Empty(t, st.results)
}

func TestAnalyzeFile_MissingFile(t *testing.T) {
	a := pipeline.NewAnalyzer(newMemStore(), t.TempDir(), discardLogger(), observability.NewMetricsForTesting())

	_, err := a.AnalyzeFile(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestAnalyzeFile_StoreFailure(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run-01.txt", twoSecondLog)

	st := newMemStore()
	st.writeErr = domain.ErrStoreUnavailable
	pub := &mockPublisher{}
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), observability.NewMetricsForTesting(),
		pipeline.WithPublishers(pub))

	_, err := a.AnalyzeFile(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
	assert.Zero(t, pub.calls, "nothing is published for a file that was not stored")
}

func TestAnalyzeFile_SinkFailuresDoNotFailFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "run-01.txt", twoSecondLog)

	st := newMemStore()
	pub := &mockPublisher{err: errors.New("broker down")}
	up := &mockUploader{err: errors.New("bucket missing")}
	metrics := observability.NewMetricsForTesting()
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), metrics,
		pipeline.WithPublishers(pub),
		pipeline.WithUploader(up),
		pipeline.WithRetryBackoff(time.Millisecond))

	_, err := a.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 3, pub.calls)
	assert.Len(t, st.results, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PublishErrors.WithLabelValues("mock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReportUploads.WithLabelValues("error")))
}

func TestAnalyzeFile_Warnings(t *testing.T) {
	log := logHeader +
		"2025-03-23 15:27:52.100\t1\tx\t0\t1\t1\t1\t25\n" +
		"not a time\t1\t1\t1\t1\t1\t1\t25\n"
	path := writeFile(t, t.TempDir(), "noisy.txt", log)

	metrics := observability.NewMetricsForTesting()
	a := pipeline.NewAnalyzer(newMemStore(), t.TempDir(), discardLogger(), metrics)

	report, err := a.AnalyzeFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Warnings.DroppedRows)
	assert.Equal(t, 1, report.Warnings.MissingValues[domain.ColSpeedY])
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RowsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.MissingValues.WithLabelValues(domain.ColSpeedY)))
}

func TestAnalyzeDir_SkipsAnalyzedFiles(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "b.txt", twoSecondLog)
	writeFile(t, dataDir, "a.txt", strings.ReplaceAll(twoSecondLog, "15:27", "16:27"))
	writeFile(t, dataDir, "notes.md", "ignored")

	st := newMemStore()
	metrics := observability.NewMetricsForTesting()
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), metrics)
	ctx := context.Background()

	summary, err := a.AnalyzeDir(ctx, dataDir, false)
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchSummary{Processed: 2}, summary)

	summary, err = a.AnalyzeDir(ctx, dataDir, false)
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchSummary{Skipped: 2}, summary)
	assert.Equal(t, 2, st.rawWrites)

	summary, err = a.AnalyzeDir(ctx, dataDir, true)
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchSummary{Processed: 2}, summary)
	assert.Equal(t, 4, st.rawWrites)

	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.FilesProcessed.WithLabelValues("processed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.FilesProcessed.WithLabelValues("skipped")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestAnalyzeDir_ContinuesAfterFailure(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "a-bad.txt", "no header here\n")
	writeFile(t, dataDir, "b-good.txt", twoSecondLog)

	st := newMemStore()
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), observability.NewMetricsForTesting())

	summary, err := a.AnalyzeDir(context.Background(), dataDir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "a-bad.txt", summary.Errors[0].FileName)
	assert.Len(t, st.results, 2)
}

func TestAnalyzeDir_RangeLookupFailure(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "a.txt", twoSecondLog)

	st := newMemStore()
	st.rangeErr = domain.ErrStoreUnavailable
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), observability.NewMetricsForTesting())

	summary, err := a.AnalyzeDir(context.Background(), dataDir, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, errors.Is(summary.Errors[0].Err, domain.ErrStoreUnavailable))
}

func TestAnalyzeDir_MissingDir(t *testing.T) {
	a := pipeline.NewAnalyzer(newMemStore(), t.TempDir(), discardLogger(), observability.NewMetricsForTesting())

	_, err := a.AnalyzeDir(context.Background(), filepath.Join(t.TempDir(), "missing"), false)
	assert.Error(t, err)
}

func TestAnalyzeDir_CancelledContext(t *testing.T) {
	dataDir := t.TempDir()
	writeFile(t, dataDir, "a.txt", twoSecondLog)

	st := newMemStore()
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), observability.NewMetricsForTesting())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := a.AnalyzeDir(ctx, dataDir, false)
	require.NoError(t, err)
	assert.Equal(t, pipeline.BatchSummary{}, summary)
	assert.Empty(t, st.results)
}

func TestAnalyzeFile_SQLiteStore(t *testing.T) {
	fixClock(t)
	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{
		Driver:           store.DriverSQLite,
		Path:             filepath.Join(t.TempDir(), "vibration.db"),
		RequireRawParent: true,
	}, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	path := writeFile(t, t.TempDir(), "run-01.txt", twoSecondLog)
	a := pipeline.NewAnalyzer(st, t.TempDir(), discardLogger(), observability.NewMetricsForTesting())

	_, err = a.AnalyzeFile(ctx, path)
	require.NoError(t, err)

	recs, err := st.ByFile(ctx, "run-01.txt")
	require.NoError(t, err)
	assert.Len(t, recs.Raw, 2)
	require.Len(t, recs.Results, 2)
	assert.Equal(t, 2, recs.Results[0].SampleCount)

	summary, err := a.AnalyzeDir(ctx, filepath.Dir(path), false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
}
