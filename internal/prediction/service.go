// Package prediction owns the lifecycle of prediction log records: scoring
// fresh telemetry into a new record, re-scoring stored records, and
// stateless scoring requests. It keeps the most recent verdict for the live
// dashboard.
package prediction

import (
	"context"
	"fmt"
	"sync"
	"time"

	"maintenance-classifier/internal/domain"
	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/ml"
	"maintenance-classifier/internal/storage"

	"github.com/rs/zerolog/log"
)

// Sources recorded against snapshots and journal entries.
const (
	SourcePredict = "predict"
	SourceCreate  = "create"
	SourceRescore = "rescore"
	SourceIngest  = "ingest"
)

// MachineDirectory resolves a machine by id.
type MachineDirectory interface {
	Machine(ctx context.Context, id uint64) (domain.Machine, error)
}

// ProductDirectory resolves a production by id.
type ProductDirectory interface {
	Product(ctx context.Context, id uint64) (domain.Product, error)
}

// Store persists log records.
type Store interface {
	CreateLog(ctx context.Context, rec domain.LogRecord) (domain.LogRecord, error)
	Log(ctx context.Context, id uint64) (domain.LogRecord, error)
	UpdateLogPrediction(ctx context.Context, id uint64, label string) (domain.LogRecord, error)
}

// Scorer produces an ensemble result for a feature vector.
type Scorer interface {
	ScoreAll(ctx context.Context, v features.Vector) (ml.Result, error)
}

// Journal receives every successful scoring.
type Journal interface {
	StoreScoring(ctx context.Context, rec storage.ScoringRecord) error
}

// Publisher is notified of every new snapshot.
type Publisher interface {
	Publish(s Snapshot)
}

// MetricsInterface defines metrics methods needed by the service
type MetricsInterface interface {
	FeatureErrorsInc()
	RecordWrittenInc(operation string)
}

// CreateRequest is the input to CreateWithPrediction.
type CreateRequest struct {
	MachineID uint64              `json:"machine_id"`
	ProductID uint64              `json:"product_id"`
	Reading   features.RawReading `json:"reading"`
	// Source labels the caller for the journal; defaults to SourceCreate.
	Source string `json:"-"`
}

// Outcome is a persisted record together with the scoring that labeled it.
type Outcome struct {
	Record domain.LogRecord `json:"record"`
	Result ml.Result        `json:"result"`
}

// Dependencies wires a Service. Machines, Products, Store and Scorer are
// required. Latest may be shared with readers created before the service.
type Dependencies struct {
	Machines  MachineDirectory
	Products  ProductDirectory
	Store     Store
	Scorer    Scorer
	Journal   Journal
	Publisher Publisher
	Metrics   MetricsInterface
	Latest    *Latest
}

// Service implements the record lifecycle. It is safe for concurrent use.
type Service struct {
	machines  MachineDirectory
	products  ProductDirectory
	store     Store
	scorer    Scorer
	journal   Journal
	publisher Publisher
	metrics   MetricsInterface
	latest    *Latest
	locks     *keyedMutex
	now       func() time.Time
}

func NewService(deps Dependencies) *Service {
	latest := deps.Latest
	if latest == nil {
		latest = &Latest{}
	}
	return &Service{
		machines:  deps.Machines,
		products:  deps.Products,
		store:     deps.Store,
		scorer:    deps.Scorer,
		journal:   deps.Journal,
		publisher: deps.Publisher,
		metrics:   deps.Metrics,
		latest:    latest,
		locks:     newKeyedMutex(),
		now:       time.Now,
	}
}

// Latest returns the cell holding the most recent verdict.
func (s *Service) Latest() *Latest {
	return s.latest
}

// Predict scores a reading without persisting anything.
func (s *Service) Predict(ctx context.Context, raw features.RawReading) (ml.Result, error) {
	vec, err := s.derive(raw)
	if err != nil {
		return ml.Result{}, err
	}

	res, err := s.scorer.ScoreAll(ctx, vec)
	if err != nil {
		return ml.Result{}, err
	}

	s.record(ctx, Snapshot{Source: SourcePredict, Result: res})
	return res, nil
}

// CreateWithPrediction derives, scores and stores a new log record labeled
// with the chosen verdict. Nothing is stored if any step fails.
func (s *Service) CreateWithPrediction(ctx context.Context, req CreateRequest) (Outcome, error) {
	reading, err := req.Reading.Normalize()
	if err != nil {
		s.featureError()
		return Outcome{}, err
	}

	machine, err := s.machines.Machine(ctx, req.MachineID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve machine %d: %w", req.MachineID, err)
	}
	if _, err := s.products.Product(ctx, req.ProductID); err != nil {
		return Outcome{}, fmt.Errorf("resolve product %d: %w", req.ProductID, err)
	}

	reading.Type = features.ParseMachineType(machine.Type)
	vec, err := features.Derive(reading)
	if err != nil {
		s.featureError()
		return Outcome{}, err
	}

	res, err := s.scorer.ScoreAll(ctx, vec)
	if err != nil {
		return Outcome{}, err
	}

	rec, err := s.store.CreateLog(ctx, domain.LogRecord{
		MachineID:          machine.ID,
		ProductID:          req.ProductID,
		AirTemperature:     reading.AirTemperature,
		ProcessTemperature: reading.ProcessTemperature,
		RotationalSpeed:    reading.RotationalSpeed,
		Torque:             reading.Torque,
		ToolWear:           reading.ToolWear,
		Prediction:         res.Chosen.Label,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("store log record: %w", err)
	}

	source := req.Source
	if source == "" {
		source = SourceCreate
	}
	if s.metrics != nil {
		s.metrics.RecordWrittenInc(source)
	}

	log.Info().
		Uint64("log_id", rec.ID).
		Uint64("machine_id", rec.MachineID).
		Str("source", source).
		Str("model", res.Chosen.Model).
		Str("prediction", rec.Prediction).
		Float64("confidence", res.Chosen.Confidence).
		Msg("Log record created")

	s.record(ctx, Snapshot{Source: source, RecordID: rec.ID, Result: res})
	return Outcome{Record: rec, Result: res}, nil
}

// Rescore re-derives features from the stored readings of record id, scores
// them against the current ensemble and overwrites only the stored label.
// Concurrent rescores of the same record run one at a time.
func (s *Service) Rescore(ctx context.Context, id uint64) (Outcome, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.store.Log(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("load log record %d: %w", id, err)
	}

	machine, err := s.machines.Machine(ctx, rec.MachineID)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve machine %d: %w", rec.MachineID, err)
	}

	vec, err := features.Derive(ReadingFromRecord(rec, machine))
	if err != nil {
		s.featureError()
		return Outcome{}, err
	}

	res, err := s.scorer.ScoreAll(ctx, vec)
	if err != nil {
		return Outcome{}, err
	}

	updated, err := s.store.UpdateLogPrediction(ctx, id, res.Chosen.Label)
	if err != nil {
		return Outcome{}, fmt.Errorf("update log record %d: %w", id, err)
	}
	if s.metrics != nil {
		s.metrics.RecordWrittenInc(SourceRescore)
	}

	if rec.Prediction != updated.Prediction {
		log.Info().
			Uint64("log_id", id).
			Str("previous", rec.Prediction).
			Str("prediction", updated.Prediction).
			Str("model", res.Chosen.Model).
			Msg("Log record relabeled")
	}

	s.record(ctx, Snapshot{Source: SourceRescore, RecordID: id, Result: res})
	return Outcome{Record: updated, Result: res}, nil
}

// ReadingFromRecord rebuilds the Kelvin reading stored on rec for machine.
func ReadingFromRecord(rec domain.LogRecord, machine domain.Machine) features.Reading {
	return features.Reading{
		Type:               features.ParseMachineType(machine.Type),
		AirTemperature:     rec.AirTemperature,
		ProcessTemperature: rec.ProcessTemperature,
		RotationalSpeed:    rec.RotationalSpeed,
		Torque:             rec.Torque,
		ToolWear:           rec.ToolWear,
	}
}

func (s *Service) derive(raw features.RawReading) (features.Vector, error) {
	reading, err := raw.Normalize()
	if err == nil {
		var vec features.Vector
		vec, err = features.Derive(reading)
		if err == nil {
			return vec, nil
		}
	}
	s.featureError()
	return features.Vector{}, err
}

func (s *Service) featureError() {
	if s.metrics != nil {
		s.metrics.FeatureErrorsInc()
	}
}

// record updates the latest cell, then journals and publishes. Journal
// failures are logged and never fail the request.
func (s *Service) record(ctx context.Context, snap Snapshot) {
	snap.ScoredAt = s.now().UTC()
	s.latest.Set(snap)

	if s.journal != nil {
		err := s.journal.StoreScoring(ctx, storage.ScoringRecord{
			Source:    snap.Source,
			LogID:     snap.RecordID,
			Timestamp: snap.ScoredAt,
			Features:  snap.Result.Features,
			PerModel:  snap.Result.PerModel,
			Chosen:    snap.Result.Chosen,
		})
		if err != nil {
			log.Warn().Err(err).Str("source", snap.Source).Msg("Failed to journal scoring")
		}
	}

	if s.publisher != nil {
		s.publisher.Publish(snap)
	}
}

// keyedMutex hands out one mutex per record id, dropping it once no caller
// holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[uint64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[uint64]*refMutex)}
}

func (k *keyedMutex) Lock(id uint64) func() {
	k.mu.Lock()
	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
