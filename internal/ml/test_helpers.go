package ml

import (
	"context"
	"sync"

	"maintenance-classifier/internal/features"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu          sync.Mutex
	predictions map[string]int
	failures    map[string]int
	chosen      map[string]int
	unavailable int
	available   float64
	confidences []float64
}

func (m *MockMetrics) ModelPredictionObserve(model string, seconds, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.predictions == nil {
		m.predictions = make(map[string]int)
	}
	m.predictions[model]++
	m.confidences = append(m.confidences, confidence)
}

func (m *MockMetrics) ModelFailureInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[model]++
}

func (m *MockMetrics) EnsembleChosenInc(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.chosen == nil {
		m.chosen = make(map[string]int)
	}
	m.chosen[model]++
}

func (m *MockMetrics) EnsembleUnavailableInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable++
}

func (m *MockMetrics) ModelsAvailableSet(n float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.available = n
}

// stubClassifier returns a fixed prediction or error.
type stubClassifier struct {
	pred  Prediction
	err   error
	panic bool
	calls int
	mu    sync.Mutex
}

func (s *stubClassifier) Predict(ctx context.Context, v features.Vector) (Prediction, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.panic {
		panic("stub classifier exploded")
	}
	if s.err != nil {
		return Prediction{}, s.err
	}
	return s.pred, nil
}

// confident builds a stub that predicts class with the given confidence.
func confident(class int, conf float64) *stubClassifier {
	probs := []float64{conf, 1 - conf}
	if class == 1 {
		probs = []float64{1 - conf, conf}
	}
	return &stubClassifier{pred: Prediction{Class: class, Probabilities: probs}}
}

func testVector() features.Vector {
	v, _ := features.Derive(features.Reading{
		Type:               features.TypeLow,
		AirTemperature:     300,
		ProcessTemperature: 310,
		RotationalSpeed:    1500,
		Torque:             40,
		ToolWear:           100,
	})
	return v
}
