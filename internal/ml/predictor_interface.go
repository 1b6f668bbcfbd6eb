// Package ml wraps the pre-trained failure classifiers. It loads each model
// artifact once into a read-only Registry and scores feature vectors against
// every available model through the ensemble Scorer.
//
// Artifacts may be Python pipelines run through an inference subprocess,
// JSON logistic models scored natively, or remote model servers.
package ml

import (
	"context"
	"fmt"
	"math"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/features"
)

// Classifier is one already-fitted binary model.
type Classifier interface {
	// Predict returns the predicted class (0 no failure, 1 failure) and,
	// when the model exposes them, the class probabilities.
	Predict(ctx context.Context, v features.Vector) (Prediction, error)
}

// Prediction is the raw output of a classifier.
type Prediction struct {
	Class         int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities,omitempty"`
}

// Label maps the predicted class to its verdict label.
func (p Prediction) Label() string {
	return LabelForClass(p.Class)
}

// Confidence is the probability of the predicted class, or 0 when the model
// reported no probabilities.
func (p Prediction) Confidence() float64 {
	if p.Class < 0 || p.Class >= len(p.Probabilities) {
		return 0
	}
	return p.Probabilities[p.Class]
}

func LabelForClass(class int) string {
	if class == 1 {
		return common.LabelFailure
	}
	return common.LabelNoFailure
}

func validatePrediction(p Prediction) error {
	if p.Class != 0 && p.Class != 1 {
		return fmt.Errorf("unexpected class %d", p.Class)
	}
	if len(p.Probabilities) == 0 {
		return nil
	}
	if len(p.Probabilities) != 2 {
		return fmt.Errorf("expected 2 probabilities, got %d", len(p.Probabilities))
	}
	for i, prob := range p.Probabilities {
		if math.IsNaN(prob) || prob < 0 || prob > 1 {
			return fmt.Errorf("invalid probability %d: %f", i, prob)
		}
	}
	return nil
}
