package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "aq_model"

// Metrics holds the Prometheus counters, histograms, and gauges for training
// and prediction.
type Metrics struct {
	ObservationsFetched prometheus.Counter
	PipelineRunning     prometheus.Gauge

	// Training metrics.
	TrainingRuns     *prometheus.CounterVec   // labels: status={trained,skipped,failed}
	TrainingDuration *prometheus.HistogramVec // labels: target
	ValidationRMSE   *prometheus.GaugeVec     // labels: target
	ValidationR2     *prometheus.GaugeVec     // labels: target

	// Prediction metrics.
	Predictions          *prometheus.CounterVec // labels: target, outcome={success,error,not_found}
	FilledFeatures       *prometheus.CounterVec // labels: target
	PredictionSinkErrors *prometheus.CounterVec // labels: sink
	ModelCache           *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ObservationsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_fetched_total",
			Help:      "Total feature-table rows read for training.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a retraining run is in progress, 0 otherwise.",
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "training_runs_total",
			Help:      "Per-target training outcomes by status.",
		}, []string{"status"}),
		TrainingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "training_duration_seconds",
			Help:      "Duration of fitting and validating one model.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"target"}),
		ValidationRMSE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_rmse",
			Help:      "Held-out RMSE of the latest trained model.",
		}, []string{"target"}),
		ValidationR2: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "validation_r2",
			Help:      "Held-out R² of the latest trained model.",
		}, []string{"target"}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Prediction requests by target and outcome.",
		}, []string{"target", "outcome"}),
		FilledFeatures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "filled_features_total",
			Help:      "Schema features defaulted at inference time.",
		}, []string{"target"}),
		PredictionSinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_sink_errors_total",
			Help:      "Failed prediction log writes by sink.",
		}, []string{"sink"}),
		ModelCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_cache_total",
			Help:      "Model bundle cache lookups by result.",
		}, []string{"result"}),
	}

	prometheus.MustRegister(
		m.ObservationsFetched,
		m.PipelineRunning,
		m.TrainingRuns,
		m.TrainingDuration,
		m.ValidationRMSE,
		m.ValidationR2,
		m.Predictions,
		m.FilledFeatures,
		m.PredictionSinkErrors,
		m.ModelCache,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		ObservationsFetched:  prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "observations_fetched_total"}),
		PipelineRunning:      prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_running"}),
		TrainingRuns:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "training_runs_total"}, []string{"status"}),
		TrainingDuration:     prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "training_duration_seconds"}, []string{"target"}),
		ValidationRMSE:       prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "validation_rmse"}, []string{"target"}),
		ValidationR2:         prometheus.NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: "validation_r2"}, []string{"target"}),
		Predictions:          prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "predictions_total"}, []string{"target", "outcome"}),
		FilledFeatures:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "filled_features_total"}, []string{"target"}),
		PredictionSinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "prediction_sink_errors_total"}, []string{"sink"}),
		ModelCache:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "model_cache_total"}, []string{"result"}),
	}
}
