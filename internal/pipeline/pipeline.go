package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	"github.com/couchcryptid/vibration-severity-etl/internal/domain"
	"github.com/couchcryptid/vibration-severity-etl/internal/export"
	"github.com/couchcryptid/vibration-severity-etl/internal/observability"
)

// LogExt is the extension of sensor logs picked up by AnalyzeDir.
const LogExt = ".txt"

// skipTolerance is how far stored and file key ranges may drift apart while
// the file still counts as analysed.
const skipTolerance = 1

// Retry policy for a failing result sink.
const (
	publishAttempts = 3
	maxBackoff      = 5 * time.Second
)

// Store persists raw samples and per-second results.
type Store interface {
	UpsertRawBatch(ctx context.Context, recs []domain.RawRecord) error
	UpsertResultBatch(ctx context.Context, recs []domain.ResultRecord) error
	FileKeyRange(ctx context.Context, fileName string) (first, last domain.EpochKey, ok bool, err error)
}

// Publisher pushes a file's results to a downstream sink.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, fileName string, results []domain.ResultRecord) error
}

// Uploader copies a report file to object storage.
type Uploader interface {
	Upload(ctx context.Context, path string) error
}

// FileReport describes one analysed file.
type FileReport struct {
	FileName   string
	Samples    int
	Buckets    int
	Collapsed  int
	Warnings   domain.Warnings
	ReportPath string
	Skipped    bool
}

// FileError records why one file of a batch failed.
type FileError struct {
	FileName string
	Err      error
}

// BatchSummary is the outcome of AnalyzeDir or ImportDir.
type BatchSummary struct {
	Processed int
	Skipped   int
	Failed    int
	Errors    []FileError
}

func (s *BatchSummary) record(name string, skipped bool, err error) {
	switch {
	case err != nil:
		s.Failed++
		s.Errors = append(s.Errors, FileError{FileName: name, Err: err})
	case skipped:
		s.Skipped++
	default:
		s.Processed++
	}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithPublishers adds result sinks.
func WithPublishers(p ...Publisher) Option {
	return func(a *Analyzer) { a.publishers = append(a.publishers, p...) }
}

// WithUploader sets the report uploader.
func WithUploader(u Uploader) Option {
	return func(a *Analyzer) { a.uploader = u }
}

// WithRetryBackoff sets the initial delay between publish attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(a *Analyzer) { a.backoff = d }
}

// Analyzer runs the read, aggregate, report, persist, publish sequence for
// sensor logs.
type Analyzer struct {
	store      Store
	publishers []Publisher
	uploader   Uploader
	resultsDir string
	logger     *slog.Logger
	metrics    *observability.Metrics
	backoff    time.Duration
}

// NewAnalyzer creates an Analyzer that writes CSV reports into resultsDir.
func NewAnalyzer(store Store, resultsDir string, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:      store,
		resultsDir: resultsDir,
		logger:     logger,
		metrics:    metrics,
		backoff:    200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeFile analyses one log unconditionally.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (FileReport, error) {
	return a.analyze(ctx, path, true)
}

// AnalyzeDir analyses every log in dir in name order. Unless force is set,
// files whose key range is already stored are skipped. A failing file is
// recorded in the summary and the batch moves on.
func (a *Analyzer) AnalyzeDir(ctx context.Context, dir string, force bool) (BatchSummary, error) {
	paths, err := listFiles(dir, LogExt)
	if err != nil {
		return BatchSummary{}, err
	}

	a.logger.Info("batch started", "dir", dir, "files", len(paths), "force", force)
	a.metrics.PipelineRunning.Set(1)
	defer a.metrics.PipelineRunning.Set(0)

	var summary BatchSummary
	for _, path := range paths {
		if ctx.Err() != nil {
			a.logger.Info("batch stopping", "reason", ctx.Err())
			break
		}
		report, err := a.analyze(ctx, path, force)
		summary.record(filepath.Base(path), report.Skipped, err)
		switch {
		case err != nil:
			a.metrics.FilesProcessed.WithLabelValues("failed").Inc()
			a.logger.Error("file failed", "file", filepath.Base(path), "error", err)
		case report.Skipped:
			a.metrics.FilesProcessed.WithLabelValues("skipped").Inc()
		default:
			a.metrics.FilesProcessed.WithLabelValues("processed").Inc()
		}
	}

	a.logger.Info("batch finished",
		"processed", summary.Processed,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (a *Analyzer) analyze(ctx context.Context, path string, force bool) (FileReport, error) {
	start := time.Now()
	name := filepath.Base(path)
	report := FileReport{FileName: name}

	table, err := readLog(path)
	if err != nil {
		return report, err
	}
	analysis := domain.Analyze(name, table)
	report.Samples = len(table.Samples)
	report.Buckets = len(analysis.Buckets)
	report.Warnings = table.Warnings

	if !force {
		done, err := a.alreadyAnalyzed(ctx, analysis)
		if err != nil {
			return report, err
		}
		if done {
			a.logger.Info("file already analysed, skipping", "file", name)
			report.Skipped = true
			return report, nil
		}
	}

	a.observeRead(name, table)

	report.ReportPath, err = export.WriteReport(a.resultsDir, path, analysis.Buckets)
	if err != nil {
		return report, err
	}

	raw, collapsed := analysis.RawRecords()
	report.Collapsed = collapsed
	a.metrics.SamplesCollapsed.Add(float64(collapsed))
	results := analysis.ResultRecords()

	if err := timedWrite(a.metrics, "raw", func() error { return a.store.UpsertRawBatch(ctx, raw) }); err != nil {
		return report, fmt.Errorf("store raw samples of %s: %w", name, err)
	}
	if err := timedWrite(a.metrics, "results", func() error { return a.store.UpsertResultBatch(ctx, results) }); err != nil {
		return report, fmt.Errorf("store results of %s: %w", name, err)
	}
	a.metrics.BucketsProduced.Add(float64(len(results)))

	a.publish(ctx, name, results)
	a.upload(ctx, report.ReportPath)

	a.metrics.FileProcessingDuration.Observe(time.Since(start).Seconds())
	a.logger.Info("file analysed",
		"file", name,
		"samples", report.Samples,
		"buckets", report.Buckets,
		"collapsed", collapsed,
		"warnings", table.Warnings.Total(),
		"report", report.ReportPath,
	)
	return report, nil
}

func readLog(path string) (domain.SampleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.SampleTable{}, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()
	table, err := domain.ParseSampleLog(f)
	if err != nil {
		return domain.SampleTable{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return table, nil
}

func (a *Analyzer) alreadyAnalyzed(ctx context.Context, analysis domain.Analysis) (bool, error) {
	first, last, ok := analysis.KeyRange()
	if !ok {
		return false, nil
	}
	storedFirst, storedLast, found, err := a.store.FileKeyRange(ctx, analysis.FileName)
	if err != nil {
		return false, fmt.Errorf("check stored range of %s: %w", analysis.FileName, err)
	}
	if !found {
		return false, nil
	}
	return abs(storedFirst-first) <= skipTolerance && abs(storedLast-last) <= skipTolerance, nil
}

func (a *Analyzer) observeRead(name string, table domain.SampleTable) {
	a.metrics.SamplesRead.Add(float64(len(table.Samples)))
	w := table.Warnings
	if w.DroppedRows > 0 {
		a.metrics.RowsDropped.Add(float64(w.DroppedRows))
		a.logger.Warn("rows dropped: unparseable time", "file", name, "rows", w.DroppedRows)
	}
	for col, n := range w.MissingValues {
		a.metrics.MissingValues.WithLabelValues(col).Add(float64(n))
		a.logger.Warn("missing values read as NaN", "file", name, "column", col, "cells", n)
	}
}

// timedWrite runs a store write and records its duration under family.
func timedWrite(m *observability.Metrics, family string, fn func() error) error {
	start := time.Now()
	err := fn()
	m.StoreWriteDuration.WithLabelValues(family).Observe(time.Since(start).Seconds())
	return err
}

// publish delivers results to every sink, retrying with exponential backoff.
// Failures are logged and metered only.
func (a *Analyzer) publish(ctx context.Context, name string, results []domain.ResultRecord) {
	if len(results) == 0 {
		return
	}
	for _, p := range a.publishers {
		backoff := a.backoff
		var err error
		for attempt := 1; attempt <= publishAttempts; attempt++ {
			if err = p.Publish(ctx, name, results); err == nil {
				break
			}
			if attempt == publishAttempts || !retry.SleepWithContext(ctx, backoff) {
				break
			}
			backoff = retry.NextBackoff(backoff, maxBackoff)
		}
		if err != nil {
			a.metrics.PublishErrors.WithLabelValues(p.Name()).Inc()
			a.logger.Error("publish results failed", "sink", p.Name(), "file", name, "error", err)
			continue
		}
		a.metrics.ResultsPublished.WithLabelValues(p.Name()).Add(float64(len(results)))
	}
}

func (a *Analyzer) upload(ctx context.Context, path string) {
	if a.uploader == nil {
		return
	}
	if err := a.uploader.Upload(ctx, path); err != nil {
		a.metrics.ReportUploads.WithLabelValues("error").Inc()
		a.logger.Error("report upload failed", "report", path, "error", err)
		return
	}
	a.metrics.ReportUploads.WithLabelValues("success").Inc()
}

// listFiles returns the files in dir with the given extension, sorted by name.
func listFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("directory %s does not exist: %w", dir, err)
		}
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ext) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func abs(k domain.EpochKey) domain.EpochKey {
	if k < 0 {
		return -k
	}
	return k
}
