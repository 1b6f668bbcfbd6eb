// Package metrics provides Prometheus metrics collection for the failure
// classifier service. It defines the per-model scoring metrics, ensemble
// outcomes, record lifecycle counters and live-feed gauges exposed on the
// metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the classifier service.
type Metrics struct {
	// Per-model scoring metrics
	ModelPredictions *prometheus.CounterVec   // Successful predictions per model
	ModelFailures    *prometheus.CounterVec   // Scoring failures per model
	ModelLatency     *prometheus.HistogramVec // Per-model prediction latency
	ModelConfidence  *prometheus.HistogramVec // Distribution of verdict confidence per model

	// Ensemble metrics
	EnsembleChosen      *prometheus.CounterVec // Times each model's verdict was chosen
	EnsembleUnavailable prometheus.Counter     // Requests no model could score
	ModelsAvailable     prometheus.Gauge       // Models loaded and scorable

	// Record and feature metrics
	FeatureErrors     prometheus.Counter     // Readings rejected during derivation
	PredictionRecords *prometheus.CounterVec // Log records written, by operation

	// Ingestion and live feed
	IngestMessages   *prometheus.CounterVec // MQTT telemetry messages, by result
	DashboardClients prometheus.Gauge       // Connected websocket clients
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ModelPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "model_predictions_total",
			Help: "Total number of successful predictions per model",
		}, []string{"model"}),
		ModelFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "model_failures_total",
			Help: "Total number of scoring failures per model",
		}, []string{"model"}),
		ModelLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "model_latency_seconds",
			Help:    "Per-model prediction latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"model"}),
		ModelConfidence: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "model_confidence",
			Help:    "Distribution of verdict confidence per model",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"model"}),
		EnsembleChosen: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ensemble_chosen_total",
			Help: "Total number of times each model's verdict was chosen",
		}, []string{"model"}),
		EnsembleUnavailable: factory.NewCounter(prometheus.CounterOpts{
			Name: "ensemble_unavailable_total",
			Help: "Total number of requests no model could score",
		}),
		ModelsAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "models_available",
			Help: "Number of models loaded and available for scoring",
		}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_errors_total",
			Help: "Total number of readings rejected during feature derivation",
		}),
		PredictionRecords: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "prediction_records_total",
			Help: "Total number of log records written with a prediction",
		}, []string{"operation"}),
		IngestMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_messages_total",
			Help: "Total number of telemetry messages received",
		}, []string{"result"}),
		DashboardClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dashboard_clients",
			Help: "Number of connected live-feed clients",
		}),
	}
}

// FailureRate returns the share of scoring attempts for model that failed,
// or 0 if the model has not been scored yet.
func (m *Metrics) FailureRate(model string) float64 {
	ok := counterValue(m.ModelPredictions.WithLabelValues(model))
	failed := counterValue(m.ModelFailures.WithLabelValues(model))
	if ok+failed == 0 {
		return 0
	}
	return failed / (ok + failed)
}
