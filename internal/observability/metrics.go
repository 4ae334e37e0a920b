package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hometown"

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge
	StageRuns       *prometheus.CounterVec   // labels: stage={extract,transform,consolidate}, outcome={succeeded,skipped,failed}
	StageDuration   *prometheus.HistogramVec // labels: stage

	// Fetcher metrics.
	PagesFetched    prometheus.Counter
	PagesMissing    prometheus.Counter
	PagesUnsaved    prometheus.Counter
	FetchRetries    prometheus.Counter
	RequestDuration *prometheus.HistogramVec // labels: query={count,page}

	// Transformation metrics.
	FilesTransformed prometheus.Counter
	TransformErrors  prometheus.Counter

	// Consolidation metrics.
	ConsolidatedRows prometheus.Gauge
	RowsDropped      *prometheus.CounterVec // labels: rule={capacity,status,duplicate}

	SinkPublishes *prometheus.CounterVec // labels: sink, outcome={success,error}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics with no registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		StageRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_runs_total",
			Help:      "Stage executions by stage and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of a stage execution.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		PagesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Result pages fetched from the feature service.",
		}),
		PagesMissing: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_missing_total",
			Help:      "Pages that could not be fetched after all retries.",
		}),
		PagesUnsaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_unsaved_total",
			Help:      "Fetched pages whose raw payload file could not be written.",
		}),
		FetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_retries_total",
			Help:      "Feature service requests retried after a connection failure.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Feature service request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"query"}),
		FilesTransformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_transformed_total",
			Help:      "Raw payload files written as Parquet.",
		}),
		TransformErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_errors_total",
			Help:      "Raw payload files that failed to transform.",
		}),
		ConsolidatedRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "consolidated_rows",
			Help:      "Rows in the most recent consolidated output.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Rows removed by cleaning, by rule.",
		}, []string{"rule"}),
		SinkPublishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_publishes_total",
			Help:      "Deliveries of consolidated output to optional sinks.",
		}, []string{"sink", "outcome"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.PipelineRunning,
		m.StageRuns,
		m.StageDuration,
		m.PagesFetched,
		m.PagesMissing,
		m.PagesUnsaved,
		m.FetchRetries,
		m.RequestDuration,
		m.FilesTransformed,
		m.TransformErrors,
		m.ConsolidatedRows,
		m.RowsDropped,
		m.SinkPublishes,
	}
}
