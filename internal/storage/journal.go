package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/ml"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"
)

const scoringsBucket = "scorings"

// ScoringRecord is one journaled ensemble scoring, kept as training data.
type ScoringRecord struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	LogID     uint64          `json:"log_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Features  features.Vector `json:"features"`
	PerModel  []ml.Verdict    `json:"per_model"`
	Chosen    ml.Verdict      `json:"chosen"`
}

// StoreScoring appends rec to the journal. Keys sort by timestamp, with the
// uuid breaking ties.
func (s *Store) StoreScoring(ctx context.Context, rec ScoringRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(scoringsBucket))

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal scoring record: %w", err)
		}

		return b.Put(scoringKey(rec.Timestamp, rec.ID), data)
	})
}

// ScoringsInRange returns journal entries with start <= timestamp <= end,
// oldest first.
func (s *Store) ScoringsInRange(ctx context.Context, start, end time.Time) ([]ScoringRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []ScoringRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(scoringsBucket)).Cursor()

		startKey := scoringKey(start, "")
		endKey := scoringKey(end.Add(time.Nanosecond), "")

		for k, v := c.Seek(startKey); k != nil && bytes.Compare(k, endKey) < 0; k, v = c.Next() {
			var rec ScoringRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue // Skip malformed records
			}
			records = append(records, rec)
		}
		return nil
	})

	return records, err
}

func scoringKey(ts time.Time, id string) []byte {
	var nanos uint64
	if ts.After(time.Unix(0, 0)) {
		nanos = uint64(ts.UnixNano())
	}
	key := itob(nanos)
	return append(key, id...)
}
