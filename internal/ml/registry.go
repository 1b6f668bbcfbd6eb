package ml

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/features"

	"github.com/rs/zerolog/log"
)

// ModelSpec describes where one ensemble member's artifact lives.
type ModelSpec struct {
	Name string `yaml:"name"`
	Kind string `yaml:"kind"`
	Path string `yaml:"path"`
	URL  string `yaml:"url"`
}

// DefaultSpecs returns the three pipelines in registration order.
func DefaultSpecs(modelsDir string) []ModelSpec {
	return []ModelSpec{
		{Name: common.ModelLogisticRegression, Kind: common.KindPython, Path: filepath.Join(modelsDir, common.LogisticRegressionArtifact)},
		{Name: common.ModelRandomForest, Kind: common.KindPython, Path: filepath.Join(modelsDir, common.RandomForestArtifact)},
		{Name: common.ModelXGBoost, Kind: common.KindPython, Path: filepath.Join(modelsDir, common.XGBoostArtifact)},
	}
}

// LoadOptions tune how artifacts are opened.
type LoadOptions struct {
	PythonPath string
	Timeout    time.Duration
	Accuracy   AccuracyTable
	Metrics    MetricsInterface
}

// Model is one registry entry. A model whose artifact failed to load keeps
// its LoadError and is never scored.
type Model struct {
	Name       string
	Kind       string
	Source     string
	Classifier Classifier
	LoadError  error
}

func (m Model) Available() bool {
	return m.Classifier != nil && m.LoadError == nil
}

// ModelStatus is the caller-visible view of a registry entry.
type ModelStatus struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Source    string  `json:"source,omitempty"`
	Available bool    `json:"available"`
	LoadError string  `json:"load_error,omitempty"`
	Accuracy  float64 `json:"accuracy"`
}

// Registry is the fixed, ordered set of ensemble members. It is never
// mutated after construction.
type Registry struct {
	models   []Model
	accuracy AccuracyTable
}

// NewRegistry builds a registry from already-constructed models.
func NewRegistry(models []Model, accuracy AccuracyTable) *Registry {
	if accuracy == nil {
		accuracy = DefaultAccuracy()
	}
	acc := make(AccuracyTable, len(accuracy))
	for k, v := range accuracy {
		acc[k] = v
	}
	return &Registry{
		models:   append([]Model(nil), models...),
		accuracy: acc,
	}
}

// probeVector is a typical healthy reading used to check an artifact loads
// and scores end to end.
var probeVector, _ = features.Derive(features.Reading{
	Type:               features.TypeMedium,
	AirTemperature:     298.1,
	ProcessTemperature: 308.6,
	RotationalSpeed:    1551,
	Torque:             42.8,
	ToolWear:           0,
})

// LoadRegistry opens every spec once. Failures are recorded per model.
func LoadRegistry(ctx context.Context, specs []ModelSpec, opts LoadOptions) *Registry {
	models := make([]Model, 0, len(specs))
	for _, spec := range specs {
		m := Model{Name: spec.Name, Kind: spec.Kind, Source: spec.Path}
		if spec.Kind == common.KindRemote {
			m.Source = spec.URL
		}

		clf, err := openClassifier(spec, opts)
		if err == nil {
			_, err = clf.Predict(ctx, probeVector)
			if err != nil {
				err = fmt.Errorf("probe prediction: %w", err)
			}
		}

		if err != nil {
			m.LoadError = err
			log.Warn().Err(err).Str("model", spec.Name).Str("kind", spec.Kind).Str("source", m.Source).
				Msg("Model unavailable, excluding it from the ensemble")
		} else {
			m.Classifier = clf
			log.Info().Str("model", spec.Name).Str("kind", spec.Kind).Str("source", m.Source).Msg("Model loaded successfully")
		}
		models = append(models, m)
	}

	reg := NewRegistry(models, opts.Accuracy)
	if opts.Metrics != nil {
		opts.Metrics.ModelsAvailableSet(float64(len(reg.Available())))
	}
	if err := reg.Err(); err != nil {
		log.Error().Err(err).Int("configured", len(specs)).Msg("No classifier could be loaded")
	}
	return reg
}

func openClassifier(spec ModelSpec, opts LoadOptions) (Classifier, error) {
	switch spec.Kind {
	case common.KindPython, "":
		return NewPythonClassifier(spec.Path, opts.PythonPath, opts.Timeout)
	case common.KindLinear:
		return LoadLinearClassifier(spec.Path)
	case common.KindRemote:
		if spec.URL == "" {
			return nil, fmt.Errorf("remote model %s has no url", spec.Name)
		}
		return NewRemoteClassifier(spec.URL, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown model kind %q", spec.Kind)
	}
}

// Available returns the scorable models in registration order.
func (r *Registry) Available() []Model {
	out := make([]Model, 0, len(r.models))
	for _, m := range r.models {
		if m.Available() {
			out = append(out, m)
		}
	}
	return out
}

// Err reports ErrModelsUnavailable when nothing can be scored.
func (r *Registry) Err() error {
	if len(r.Available()) == 0 {
		return ErrModelsUnavailable
	}
	return nil
}

func (r *Registry) Status() []ModelStatus {
	out := make([]ModelStatus, 0, len(r.models))
	for _, m := range r.models {
		st := ModelStatus{
			Name:      m.Name,
			Kind:      m.Kind,
			Source:    m.Source,
			Available: m.Available(),
			Accuracy:  r.accuracy[m.Name],
		}
		if m.LoadError != nil {
			st.LoadError = m.LoadError.Error()
		}
		out = append(out, st)
	}
	return out
}

// Performance returns the accuracy table, registered models first.
func (r *Registry) Performance() []ModelPerformance {
	out := make([]ModelPerformance, 0, len(r.accuracy))
	seen := make(map[string]bool, len(r.models))
	for _, m := range r.models {
		if acc, ok := r.accuracy[m.Name]; ok {
			out = append(out, ModelPerformance{Model: m.Name, Accuracy: acc})
			seen[m.Name] = true
		}
	}
	for _, name := range sortedKeys(r.accuracy) {
		if !seen[name] {
			out = append(out, ModelPerformance{Model: name, Accuracy: r.accuracy[name]})
		}
	}
	return out
}

func sortedKeys(m AccuracyTable) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
