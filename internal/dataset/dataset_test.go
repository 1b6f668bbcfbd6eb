package dataset

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/ml"
	"maintenance-classifier/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `UDI,Product ID,Type,Air temperature [K],Process temperature [K],Rotational speed [rpm],Torque [Nm],Tool wear [min],Machine failure,TWF,HDF,PWF,OSF,RNF
1,M14860,M,298.1,308.6,1551,42.8,0,0,0,0,0,0,0
2,L47181,L,298.2,308.7,1408,46.3,3,0,0,0,0,0,0
3,L47182,L,298.1,308.5,1498,49.4,5,1,0,0,0,0,0
4,H29424,H,298.3,308.6,bad,40.0,9,0,0,0,0,0,0
5,H29425,H,298.4,308.7,1433,39.5,11,0,0,0,0,0,0
`

func loadSample(t *testing.T) *Loader {
	t.Helper()
	l := NewLoader()
	require.NoError(t, l.Read(strings.NewReader(sample)))
	return l
}

func TestLoader_Read(t *testing.T) {
	l := loadSample(t)

	assert.Equal(t, 4, l.Count())
	assert.Equal(t, 1, l.Skipped)
	assert.Equal(t, []features.MachineType{features.TypeMedium, features.TypeLow, features.TypeHigh}, l.Types())

	first := l.Next()
	assert.Equal(t, features.TypeMedium, first.Reading.Type)
	assert.InDelta(t, 1551, first.Reading.RotationalSpeed, 1e-9)
	assert.False(t, first.Failure)

	l.Next()
	third := l.Next()
	assert.True(t, third.Failure)

	l.Next()
	assert.False(t, l.HasNext())
	assert.Equal(t, Row{}, l.Next())

	l.Reset()
	assert.True(t, l.HasNext())
}

func TestLoader_MissingColumn(t *testing.T) {
	l := NewLoader()
	err := l.Read(strings.NewReader("Type,Torque [Nm]\nL,40\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ColumnAirTemperature)
}

func TestLoader_LoadFromCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ai4i2020.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	l := NewLoader()
	require.NoError(t, l.LoadFromCSV(path))
	assert.Equal(t, 4, l.Count())

	assert.Error(t, NewLoader().LoadFromCSV(filepath.Join(t.TempDir(), "missing.csv")))
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	summary, err := Seed(ctx, store, loadSample(t), SeedOptions{Products: 2})
	require.NoError(t, err)
	assert.Equal(t, SeedSummary{Machines: 3, Products: 2, Logs: 4}, summary)

	machines, err := store.Machines(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 3)
	assert.Equal(t, "MC-0001", machines[0].Code)
	byID := make(map[uint64]string)
	for _, m := range machines {
		byID[m.ID] = m.Type
	}

	logs, err := store.Logs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 4)

	failures := 0
	for _, rec := range logs {
		if rec.Prediction == common.LabelFailure {
			failures++
			assert.Equal(t, "L", byID[rec.MachineID])
		}
	}
	assert.Equal(t, 1, failures)

	_, err = Seed(ctx, store, loadSample(t), SeedOptions{})
	assert.ErrorIs(t, err, ErrAlreadySeeded)
}

func TestSeed_Limit(t *testing.T) {
	ctx := context.Background()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	summary, err := Seed(ctx, store, loadSample(t), SeedOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Logs)
	assert.Equal(t, 5, summary.Products)

	products, err := store.Products(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Product AAB", products[0].Name)
}

func TestWriteScorings(t *testing.T) {
	vec, err := features.Derive(features.Reading{
		Type: features.TypeLow, AirTemperature: 300, ProcessTemperature: 310,
		RotationalSpeed: 1500, Torque: 40, ToolWear: 100,
	})
	require.NoError(t, err)

	models := []string{common.ModelLogisticRegression, common.ModelRandomForest, common.ModelXGBoost}
	chosen := ml.Verdict{Model: common.ModelRandomForest, Label: common.LabelFailure, Confidence: 0.9}
	records := []storage.ScoringRecord{{
		ID:        "abc",
		Source:    "create",
		LogID:     12,
		Timestamp: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
		Features:  vec,
		PerModel: []ml.Verdict{
			{Model: common.ModelLogisticRegression, Label: common.LabelNoFailure, Confidence: 0.6},
			chosen,
			{Model: common.ModelXGBoost, Failed: true, Error: "timeout"},
		},
		Chosen: chosen,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteScorings(&buf, models, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	header, row := rows[0], rows[1]
	require.Len(t, row, len(header))
	col := func(name string) string {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("column %s missing", name)
		return ""
	}

	assert.Equal(t, "12", col("log_id"))
	assert.Equal(t, "1", col("Type"))
	assert.Equal(t, "10", col("Temp_Diff_K"))
	assert.Equal(t, common.LabelNoFailure, col(common.ModelLogisticRegression+"_label"))
	assert.Equal(t, "", col(common.ModelXGBoost+"_label"))
	assert.Equal(t, common.ModelRandomForest, col("chosen_model"))
	assert.Equal(t, "0.9", col("chosen_confidence"))
}
