package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "vibration_etl"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL pipeline.
type Metrics struct {
	FilesProcessed   *prometheus.CounterVec // labels: outcome={processed,skipped,failed}
	SamplesRead      prometheus.Counter
	RowsDropped      prometheus.Counter
	MissingValues    *prometheus.CounterVec // labels: column
	BucketsProduced  prometheus.Counter
	SamplesCollapsed prometheus.Counter
	PipelineRunning  prometheus.Gauge

	FileProcessingDuration prometheus.Histogram
	StoreWriteDuration     *prometheus.HistogramVec // labels: family={raw,results,gps_raw,gps_results}

	// GPS track metrics.
	GPSPoints *prometheus.CounterVec // labels: kind={imported,interpolated,derived}

	// Result sinks and report uploads.
	ResultsPublished *prometheus.CounterVec // labels: sink
	PublishErrors    *prometheus.CounterVec // labels: sink
	ReportUploads    *prometheus.CounterVec // labels: outcome={success,error}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.FilesProcessed,
		m.SamplesRead,
		m.RowsDropped,
		m.MissingValues,
		m.BucketsProduced,
		m.SamplesCollapsed,
		m.PipelineRunning,
		m.FileProcessingDuration,
		m.StoreWriteDuration,
		m.GPSPoints,
		m.ResultsPublished,
		m.PublishErrors,
		m.ReportUploads,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}
	return &Metrics{
		FilesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      help("Sensor logs handled by the batch runner, by outcome."),
		}, []string{"outcome"}),
		SamplesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_read_total",
			Help:      help("Samples parsed from sensor logs."),
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      help("Log rows dropped because their time did not parse."),
		}),
		MissingValues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missing_values_total",
			Help:      help("Cells read as missing, by column."),
		}, []string{"column"}),
		BucketsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buckets_total",
			Help:      help("Per-second buckets produced."),
		}),
		SamplesCollapsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "raw_samples_collapsed_total",
			Help:      help("Samples superseded by a later sample of the same second in raw storage."),
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      help("1 while a batch is running, 0 otherwise."),
		}),
		FileProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "file_processing_duration_seconds",
			Help:      help("Duration of analysing one sensor log end to end."),
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		StoreWriteDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_write_duration_seconds",
			Help:      help("Duration of batched store writes, by record family."),
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}, []string{"family"}),
		GPSPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gps_points_total",
			Help:      help("GPS points handled, by kind."),
		}, []string{"kind"}),
		ResultsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_published_total",
			Help:      help("Per-second results published, by sink."),
		}, []string{"sink"}),
		PublishErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      help("Failed result publications, by sink."),
		}, []string{"sink"}),
		ReportUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_uploads_total",
			Help:      help("Report uploads to object storage, by outcome."),
		}, []string{"outcome"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Reverse geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Reverse geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      help("1 when reverse geocoding is enabled, 0 otherwise."),
		}),
	}
}
