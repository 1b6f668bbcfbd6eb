package ml

import (
	"errors"
	"fmt"
)

// ErrModelsUnavailable is returned when no model can score a request.
var ErrModelsUnavailable = errors.New("no classifier models available")

// ScoringError records a single model failing during scoring.
type ScoringError struct {
	Model string
	Err   error
}

func (e *ScoringError) Error() string {
	return fmt.Sprintf("model %s: %v", e.Model, e.Err)
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}
