package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// MetricsWrapper adapts Metrics to the narrow interfaces the scorer,
// prediction service, ingester and dashboard depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) ModelPredictionObserve(model string, seconds, confidence float64) {
	w.m.ModelPredictions.WithLabelValues(model).Inc()
	w.m.ModelLatency.WithLabelValues(model).Observe(seconds)
	w.m.ModelConfidence.WithLabelValues(model).Observe(confidence)
}

func (w *MetricsWrapper) ModelFailureInc(model string) {
	w.m.ModelFailures.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) EnsembleChosenInc(model string) {
	w.m.EnsembleChosen.WithLabelValues(model).Inc()
}

func (w *MetricsWrapper) EnsembleUnavailableInc() {
	w.m.EnsembleUnavailable.Inc()
}

func (w *MetricsWrapper) ModelsAvailableSet(n float64) {
	w.m.ModelsAvailable.Set(n)
}

func (w *MetricsWrapper) FeatureErrorsInc() {
	w.m.FeatureErrors.Inc()
}

func (w *MetricsWrapper) RecordWrittenInc(operation string) {
	w.m.PredictionRecords.WithLabelValues(operation).Inc()
}

func (w *MetricsWrapper) IngestMessageInc(result string) {
	w.m.IngestMessages.WithLabelValues(result).Inc()
}

func (w *MetricsWrapper) DashboardClientsSet(n float64) {
	w.m.DashboardClients.Set(n)
}

func counterValue(c prometheus.Counter) float64 {
	var out dto.Metric
	if err := c.Write(&out); err != nil || out.Counter == nil {
		return 0
	}
	return out.Counter.GetValue()
}
