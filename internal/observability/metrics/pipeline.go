package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks batch analysis runs.
type PipelineMetrics struct {
	RunsTotal            *prometheus.CounterVec
	RunDuration          prometheus.Histogram
	PhotosAnalyzed       prometheus.Counter
	ObservationsProduced prometheus.Counter
	ObservationsDropped  prometheus.Counter
	ItemsSkipped         *prometheus.CounterVec
	AnalyzeDuration      prometheus.Histogram
	LastRunTime          prometheus.Gauge
	registry             *prometheus.Registry
}

// NewPipelineMetrics creates and registers pipeline metrics.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register pipeline metrics: %w", err)
	}
	return m, nil
}

func (m *PipelineMetrics) initMetrics() {
	m.RunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_runs_total",
		Help: "Total number of analysis runs by outcome",
	}, []string{"outcome"})

	m.RunDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_run_duration_seconds",
		Help:    "Wall time of analysis runs",
		Buckets: prometheus.ExponentialBuckets(BucketStart10ms, BucketFactor2, BucketCount15),
	})

	m.PhotosAnalyzed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_photos_analyzed_total",
		Help: "Photos marked analyzed by the pipeline",
	})

	m.ObservationsProduced = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_observations_produced_total",
		Help: "Observations persisted by the pipeline",
	})

	m.ObservationsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_observations_dropped_total",
		Help: "Observations that failed to persist",
	})

	m.ItemsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_items_skipped_total",
		Help: "Photos left unanalyzed, by reason",
	}, []string{"reason"})

	m.AnalyzeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_analyze_duration_seconds",
		Help:    "Time spent in the analyzer per photo",
		Buckets: prometheus.ExponentialBuckets(BucketStart100us, BucketFactor2, BucketCount15),
	})

	m.LastRunTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_last_run_timestamp_seconds",
		Help: "Unix time the last run finished",
	})
}

// RecordRun records one finished run.
func (m *PipelineMetrics) RecordRun(outcome string, duration time.Duration) {
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(duration.Seconds())
	m.LastRunTime.SetToCurrentTime()
}

// AddPhotosAnalyzed adds n analyzed photos.
func (m *PipelineMetrics) AddPhotosAnalyzed(n int) {
	m.PhotosAnalyzed.Add(float64(n))
}

// AddObservations adds persisted and dropped observation counts.
func (m *PipelineMetrics) AddObservations(produced, dropped int) {
	m.ObservationsProduced.Add(float64(produced))
	m.ObservationsDropped.Add(float64(dropped))
}

// RecordSkipped counts a photo skipped for reason.
func (m *PipelineMetrics) RecordSkipped(reason string) {
	m.ItemsSkipped.WithLabelValues(reason).Inc()
}

// ObserveAnalyze records analyzer latency.
func (m *PipelineMetrics) ObserveAnalyze(d time.Duration) {
	m.AnalyzeDuration.Observe(d.Seconds())
}

func (m *PipelineMetrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RunsTotal,
		m.RunDuration,
		m.PhotosAnalyzed,
		m.ObservationsProduced,
		m.ObservationsDropped,
		m.ItemsSkipped,
		m.AnalyzeDuration,
		m.LastRunTime,
	}
}

// Describe implements the prometheus.Collector interface.
func (m *PipelineMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors() {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface.
func (m *PipelineMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors() {
		c.Collect(ch)
	}
}
