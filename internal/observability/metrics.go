package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "envmodel"

// Cycle outcomes.
const (
	OutcomePublished = "published"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

// Prediction outcomes.
const (
	PredictionSuccess     = "success"
	PredictionInvalid     = "invalid"
	PredictionUnavailable = "unavailable"
	PredictionError       = "error"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// retraining pipeline and the scoring service.
type Metrics struct {
	// Pipeline cycle metrics.
	Cycles        *prometheus.CounterVec // labels: outcome={published,skipped,failed}
	CycleDuration prometheus.Histogram
	PipelineState *prometheus.GaugeVec // labels: state; 1 for the current state

	// Feature building metrics.
	RawReadings    prometheus.Gauge
	FeatureRows    prometheus.Gauge
	SkippedRecords *prometheus.CounterVec // labels: kind={line,reading}

	// Model metrics.
	ModelRMSE        prometheus.Gauge
	ModelR2          prometheus.Gauge
	TrainingDuration prometheus.Histogram
	LastPublish      prometheus.Gauge
	NotifyErrors     prometheus.Counter

	// Scoring metrics.
	Predictions *prometheus.CounterVec // labels: outcome={success,invalid,unavailable,error}
	ModelLoaded prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Retraining cycles by outcome.",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Duration of a complete fetch-build-train-publish cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
		}),
		PipelineState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_state",
			Help:      "1 for the orchestrator's current state, 0 for the others.",
		}, []string{"state"}),
		RawReadings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "raw_readings",
			Help:      "Readings flattened in the last cycle.",
		}),
		FeatureRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feature_rows",
			Help:      "Feature rows built in the last cycle.",
		}),
		SkippedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_records_total",
			Help:      "Malformed lines and unusable readings skipped while loading data.",
		}, []string{"kind"}),
		ModelRMSE: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_rmse",
			Help:      "Held-out RMSE of the last trained model.",
		}),
		ModelR2: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_r2",
			Help:      "Held-out R² of the last trained model.",
		}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Duration of forest fitting and evaluation.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		LastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_publish_timestamp_seconds",
			Help:      "Unix time of the last successful artifact publish.",
		}),
		NotifyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_errors_total",
			Help:      "Failed model-published notifications.",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Scoring requests by outcome.",
		}, []string{"outcome"}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when the scoring service holds a usable model, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Cycles,
		m.CycleDuration,
		m.PipelineState,
		m.RawReadings,
		m.FeatureRows,
		m.SkippedRecords,
		m.ModelRMSE,
		m.ModelR2,
		m.TrainingDuration,
		m.LastPublish,
		m.NotifyErrors,
		m.Predictions,
		m.ModelLoaded,
	}
}
