package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Fetch and aggregation.
	Syncs               *prometheus.CounterVec // labels: outcome={success,error}
	SyncedFiles         prometheus.Counter
	Aggregations        *prometheus.CounterVec // labels: status={200,408,404,-99,...}
	AggregationDuration prometheus.Histogram
	CheckpointHits      prometheus.Counter
	BucketDuration      prometheus.Histogram

	// Output.
	MergedRows         prometheus.Counter
	Archives           *prometheus.CounterVec // labels: outcome={success,error}
	ResourcesPublished prometheus.Counter
	Scenarios          *prometheus.CounterVec // labels: state={done,skipped,failed}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chc_pipeline",
			Name:      "running",
			Help:      "1 while a pipeline run is in progress, 0 otherwise.",
		}),
		Syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chc_pipeline",
			Name:      "syncs_total",
			Help:      "rsync invocations by outcome.",
		}, []string{"outcome"}),
		SyncedFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chc_pipeline",
			Name:      "synced_files_total",
			Help:      "Raster files reported as transferred by rsync.",
		}),
		Aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chc_pipeline",
			Name:      "aggregations_total",
			Help:      "Zonal statistics tasks by status code.",
		}, []string{"status"}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chc_pipeline",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of a single raster's zonal statistics task.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		CheckpointHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chc_pipeline",
			Name:      "checkpoint_hits_total",
			Help:      "Buckets resumed from a done.txt marker.",
		}),
		BucketDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "chc_pipeline",
			Name:      "bucket_duration_seconds",
			Help:      "Duration of a complete fetch and aggregate cycle for one bucket.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		MergedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chc_pipeline",
			Name:      "merged_rows_total",
			Help:      "Data rows written to merged scenario tables.",
		}),
		Archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chc_pipeline",
			Name:      "archives_total",
			Help:      "GeoTIFF archives generated by outcome.",
		}, []string{"outcome"}),
		ResourcesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chc_pipeline",
			Name:      "resources_published_total",
			Help:      "Resources handed to the catalog.",
		}),
		Scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chc_pipeline",
			Name:      "scenarios_total",
			Help:      "Scenarios finished by terminal state.",
		}, []string{"state"}),
	}

	prometheus.MustRegister(
		m.PipelineRunning,
		m.Syncs,
		m.SyncedFiles,
		m.Aggregations,
		m.AggregationDuration,
		m.CheckpointHits,
		m.BucketDuration,
		m.MergedRows,
		m.Archives,
		m.ResourcesPublished,
		m.Scenarios,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		PipelineRunning:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "chc_pipeline", Name: "running"}),
		Syncs:               prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "chc_pipeline", Name: "syncs_total"}, []string{"outcome"}),
		SyncedFiles:         prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chc_pipeline", Name: "synced_files_total"}),
		Aggregations:        prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "chc_pipeline", Name: "aggregations_total"}, []string{"status"}),
		AggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "chc_pipeline", Name: "aggregation_duration_seconds"}),
		CheckpointHits:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chc_pipeline", Name: "checkpoint_hits_total"}),
		BucketDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "chc_pipeline", Name: "bucket_duration_seconds"}),
		MergedRows:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chc_pipeline", Name: "merged_rows_total"}),
		Archives:            prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "chc_pipeline", Name: "archives_total"}, []string{"outcome"}),
		ResourcesPublished:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: "chc_pipeline", Name: "resources_published_total"}),
		Scenarios:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "chc_pipeline", Name: "scenarios_total"}, []string{"state"}),
	}
}
