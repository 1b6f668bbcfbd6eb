package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"

	"maintenance-classifier/internal/features"
)

// LinearModel is a logistic regression exported as JSON, optionally with the
// standard-scaler statistics it was fitted behind.
type LinearModel struct {
	Intercept    float64   `json:"intercept"`
	Coefficients []float64 `json:"coefficients"`
	Mean         []float64 `json:"mean,omitempty"`
	Scale        []float64 `json:"scale,omitempty"`
	Threshold    float64   `json:"threshold,omitempty"`
}

// LinearClassifier scores a LinearModel without leaving the process.
type LinearClassifier struct {
	model LinearModel
}

func NewLinearClassifier(m LinearModel) (*LinearClassifier, error) {
	n := len(features.Names)
	if len(m.Coefficients) != n {
		return nil, fmt.Errorf("expected %d coefficients, got %d", n, len(m.Coefficients))
	}
	if len(m.Mean) != 0 && len(m.Mean) != n {
		return nil, fmt.Errorf("expected %d scaler means, got %d", n, len(m.Mean))
	}
	if len(m.Scale) != 0 && len(m.Scale) != n {
		return nil, fmt.Errorf("expected %d scaler scales, got %d", n, len(m.Scale))
	}
	for i, s := range m.Scale {
		if s == 0 {
			return nil, fmt.Errorf("scaler scale %d is zero", i)
		}
	}
	if m.Threshold == 0 {
		m.Threshold = 0.5
	}
	if m.Threshold <= 0 || m.Threshold >= 1 {
		return nil, fmt.Errorf("threshold %f outside (0, 1)", m.Threshold)
	}
	return &LinearClassifier{model: m}, nil
}

// LoadLinearClassifier reads a LinearModel artifact from disk.
func LoadLinearClassifier(path string) (*LinearClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode linear model %s: %w", path, err)
	}
	return NewLinearClassifier(m)
}

func (c *LinearClassifier) Predict(ctx context.Context, v features.Vector) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	prob := sigmoid(c.score(v.Values()))
	if math.IsNaN(prob) {
		return Prediction{}, fmt.Errorf("linear model produced NaN")
	}

	class := 0
	if prob >= c.model.Threshold {
		class = 1
	}
	return Prediction{Class: class, Probabilities: []float64{1 - prob, prob}}, nil
}

func (c *LinearClassifier) score(x []float64) float64 {
	z := c.model.Intercept
	for i, coef := range c.model.Coefficients {
		xi := x[i]
		if len(c.model.Mean) > 0 {
			xi -= c.model.Mean[i]
		}
		if len(c.model.Scale) > 0 {
			xi /= c.model.Scale[i]
		}
		z += coef * xi
	}
	return z
}

// sigmoid converts a score to a probability
func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}
