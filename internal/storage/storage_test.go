package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"maintenance-classifier/internal/domain"
	"maintenance-classifier/internal/ml"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, dbFileName)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestNew_InvalidPath(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "nested"))
	if err == nil {
		t.Error("Expected error for invalid path, got nil")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestMachines(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	m1, err := store.CreateMachine(ctx, domain.Machine{Code: "MCH-001", Type: "L"})
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}
	m2, err := store.CreateMachine(ctx, domain.Machine{Code: "MCH-002", Type: "H"})
	if err != nil {
		t.Fatalf("CreateMachine failed: %v", err)
	}

	if m1.ID != 1 || m2.ID != 2 {
		t.Errorf("Expected sequential ids 1,2 got %d,%d", m1.ID, m2.ID)
	}
	if m1.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	got, err := store.Machine(ctx, m2.ID)
	if err != nil {
		t.Fatalf("Machine failed: %v", err)
	}
	if got.Type != "H" || got.Code != "MCH-002" {
		t.Errorf("Unexpected machine %+v", got)
	}

	all, err := store.Machines(ctx)
	if err != nil {
		t.Fatalf("Machines failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != 1 {
		t.Errorf("Expected 2 machines in id order, got %+v", all)
	}

	if _, err := store.Machine(ctx, 99); !errors.Is(err, domain.ErrMachineNotFound) {
		t.Errorf("Expected ErrMachineNotFound, got %v", err)
	}

	if _, err := store.CreateMachine(ctx, domain.Machine{Code: "X"}); err == nil {
		t.Error("Expected error for machine without type")
	}
}

func TestProducts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	p, err := store.CreateProduct(ctx, domain.Product{Code: "PRD-001", Name: "Bracket"})
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	renamed, err := store.RenameProduct(ctx, p.ID, "  Steel bracket ")
	if err != nil {
		t.Fatalf("RenameProduct failed: %v", err)
	}
	if renamed.Name != "Steel bracket" || renamed.Code != "PRD-001" {
		t.Errorf("Unexpected product after rename %+v", renamed)
	}

	got, err := store.Product(ctx, p.ID)
	if err != nil {
		t.Fatalf("Product failed: %v", err)
	}
	if got.Name != "Steel bracket" {
		t.Errorf("Rename not persisted: %+v", got)
	}

	if _, err := store.RenameProduct(ctx, 42, "x"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}
	if _, err := store.Product(ctx, 42); !errors.Is(err, domain.ErrProductNotFound) {
		t.Errorf("Expected ErrProductNotFound, got %v", err)
	}

	list, err := store.Products(ctx)
	if err != nil || len(list) != 1 {
		t.Errorf("Expected one product, got %v (%v)", list, err)
	}
}

func sampleLog() domain.LogRecord {
	return domain.LogRecord{
		MachineID:          1,
		ProductID:          1,
		AirTemperature:     298.1,
		ProcessTemperature: 308.6,
		RotationalSpeed:    1551,
		Torque:             42.8,
		ToolWear:           3,
		Prediction:         "Tidak Rusak",
	}
}

func TestLogs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 5; i++ {
		rec := sampleLog()
		rec.ToolWear = float64(i)
		if _, err := store.CreateLog(ctx, rec); err != nil {
			t.Fatalf("CreateLog failed: %v", err)
		}
	}

	logs, err := store.Logs(ctx, 0)
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if len(logs) != 5 {
		t.Fatalf("Expected 5 logs, got %d", len(logs))
	}
	if logs[0].ID != 5 || logs[4].ID != 1 {
		t.Errorf("Expected newest first, got ids %d..%d", logs[0].ID, logs[4].ID)
	}

	limited, err := store.Logs(ctx, 2)
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != 5 {
		t.Errorf("Expected two newest logs, got %+v", limited)
	}

	if _, err := store.Log(ctx, 77); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdateLogPrediction_OnlyTouchesLabel(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.CreateLog(ctx, sampleLog())
	if err != nil {
		t.Fatalf("CreateLog failed: %v", err)
	}

	updated, err := store.UpdateLogPrediction(ctx, created.ID, "Rusak")
	if err != nil {
		t.Fatalf("UpdateLogPrediction failed: %v", err)
	}

	want := created
	want.Prediction = "Rusak"
	got, _ := store.Log(ctx, created.ID)
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Errorf("CreatedAt changed: %v -> %v", want.CreatedAt, got.CreatedAt)
	}
	got.CreatedAt, want.CreatedAt, updated.CreatedAt = time.Time{}, time.Time{}, time.Time{}
	if got != want || updated != want {
		t.Errorf("Expected only label to change.\nwant %+v\ngot  %+v", want, got)
	}

	if _, err := store.UpdateLogPrediction(ctx, 404, "Rusak"); !errors.Is(err, domain.ErrRecordNotFound) {
		t.Errorf("Expected ErrRecordNotFound, got %v", err)
	}
}

func TestUpdateLogPrediction_Concurrent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	created, err := store.CreateLog(ctx, sampleLog())
	if err != nil {
		t.Fatalf("CreateLog failed: %v", err)
	}

	var wg sync.WaitGroup
	labels := []string{"Rusak", "Tidak Rusak"}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.UpdateLogPrediction(ctx, created.ID, labels[i%2]); err != nil {
				t.Errorf("UpdateLogPrediction failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.Log(ctx, created.ID)
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if got.Prediction != "Rusak" && got.Prediction != "Tidak Rusak" {
		t.Errorf("Unexpected label %q", got.Prediction)
	}
	if got.Torque != created.Torque {
		t.Errorf("Readings changed during concurrent updates")
	}
}

func TestScoringJournal(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		err := store.StoreScoring(ctx, ScoringRecord{
			Source:    "predict",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Chosen:    ml.Verdict{Model: "XGBoost", Label: "Rusak", Confidence: 0.9},
		})
		if err != nil {
			t.Fatalf("StoreScoring failed: %v", err)
		}
	}

	records, err := store.ScoringsInRange(ctx, base.Add(time.Hour), base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("ScoringsInRange failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records in inclusive range, got %d", len(records))
	}
	if !records[0].Timestamp.Before(records[1].Timestamp) {
		t.Error("Expected oldest first")
	}
	if records[0].ID == "" || records[0].ID == records[1].ID {
		t.Error("Expected unique generated ids")
	}

	all, err := store.ScoringsInRange(ctx, time.Time{}, base.Add(24*time.Hour))
	if err != nil || len(all) != 4 {
		t.Errorf("Expected all 4 records, got %d (%v)", len(all), err)
	}
}

func TestScoringJournal_EmptyRange(t *testing.T) {
	store := newTestStore(t)
	records, err := store.ScoringsInRange(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("ScoringsInRange failed: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}
