package prediction

import (
	"sync"
	"time"

	"maintenance-classifier/internal/ml"
)

// Snapshot is one scoring as seen by the dashboard.
type Snapshot struct {
	Source   string    `json:"source"`
	RecordID uint64    `json:"log_id,omitempty"`
	Result   ml.Result `json:"result"`
	ScoredAt time.Time `json:"scored_at"`
}

// Latest holds the most recent snapshot. Readers never block each other.
type Latest struct {
	mu   sync.RWMutex
	snap Snapshot
	set  bool
}

func (l *Latest) Set(s Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snap = s
	l.set = true
}

// Get returns the latest snapshot and whether anything has been scored yet.
func (l *Latest) Get() (Snapshot, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snap, l.set
}
