package ml

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"maintenance-classifier/internal/features"

	"github.com/rs/zerolog/log"
)

// MetricsInterface defines metrics methods needed by the scorer
type MetricsInterface interface {
	ModelPredictionObserve(model string, seconds, confidence float64)
	ModelFailureInc(model string)
	EnsembleChosenInc(model string)
	EnsembleUnavailableInc()
	ModelsAvailableSet(n float64)
}

// Verdict is one model's answer for a feature vector.
type Verdict struct {
	Model      string  `json:"model"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Failed     bool    `json:"failed,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Result is the reconciled ensemble output.
type Result struct {
	PerModel []Verdict       `json:"per_model"`
	Chosen   Verdict         `json:"chosen"`
	Features features.Vector `json:"derived_features"`
}

// Verdict looks up a single model's verdict.
func (r Result) Verdict(model string) (Verdict, bool) {
	for _, v := range r.PerModel {
		if v.Model == model {
			return v, true
		}
	}
	return Verdict{}, false
}

// Degraded reports whether any model failed while scoring.
func (r Result) Degraded() bool {
	for _, v := range r.PerModel {
		if v.Failed {
			return true
		}
	}
	return false
}

// Scorer runs every available model and picks the most confident verdict.
// It holds no mutable state.
type Scorer struct {
	registry *Registry
	metrics  MetricsInterface
}

func NewScorer(registry *Registry, metrics MetricsInterface) *Scorer {
	return &Scorer{registry: registry, metrics: metrics}
}

func (s *Scorer) Registry() *Registry {
	return s.registry
}

// ScoreAll scores v against the ensemble. Individual model failures are
// reported in the result; only when no model produces a verdict does it
// fail, with ErrModelsUnavailable.
func (s *Scorer) ScoreAll(ctx context.Context, v features.Vector) (Result, error) {
	models := s.registry.Available()
	if len(models) == 0 {
		if s.metrics != nil {
			s.metrics.EnsembleUnavailableInc()
		}
		return Result{}, ErrModelsUnavailable
	}

	verdicts := make([]Verdict, len(models))
	failures := make([]error, len(models))

	var wg sync.WaitGroup
	for i, m := range models {
		wg.Add(1)
		go func(i int, m Model) {
			defer wg.Done()
			verdicts[i], failures[i] = s.scoreOne(ctx, m, v)
		}(i, m)
	}
	wg.Wait()

	chosen := -1
	for i, verdict := range verdicts {
		if verdict.Failed {
			continue
		}
		if chosen < 0 || verdict.Confidence > verdicts[chosen].Confidence {
			chosen = i
		}
	}

	if chosen < 0 {
		// A cancelled or expired request is not an ensemble outage.
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("score ensemble: %w", err)
		}
		if s.metrics != nil {
			s.metrics.EnsembleUnavailableInc()
		}
		return Result{}, fmt.Errorf("%w: %w", ErrModelsUnavailable, errors.Join(failures...))
	}

	if s.metrics != nil {
		s.metrics.EnsembleChosenInc(verdicts[chosen].Model)
	}

	return Result{
		PerModel: verdicts,
		Chosen:   verdicts[chosen],
		Features: v,
	}, nil
}

func (s *Scorer) scoreOne(ctx context.Context, m Model, v features.Vector) (verdict Verdict, err error) {
	start := time.Now()
	verdict = Verdict{Model: m.Name}

	defer func() {
		if r := recover(); r != nil {
			err = &ScoringError{Model: m.Name, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			verdict = Verdict{Model: m.Name, Failed: true, Error: err.Error()}
			log.Warn().Err(err).Str("model", m.Name).Msg("Model failed during scoring")
			if s.metrics != nil {
				s.metrics.ModelFailureInc(m.Name)
			}
		}
	}()

	pred, perr := m.Classifier.Predict(ctx, v)
	if perr == nil {
		perr = validatePrediction(pred)
	}
	if perr != nil {
		return verdict, &ScoringError{Model: m.Name, Err: perr}
	}

	verdict.Label = pred.Label()
	verdict.Confidence = pred.Confidence()

	if s.metrics != nil {
		s.metrics.ModelPredictionObserve(m.Name, time.Since(start).Seconds(), verdict.Confidence)
	}
	return verdict, nil
}
