package repository

import (
	"context"
	"testing"
	"time"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(common.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("mysql", "dsn")
	assert.Error(t, err)
}

func TestRepository_MachinesAndProducts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	m, err := repo.CreateMachine(ctx, domain.Machine{Code: "MCH-001", Type: "M"})
	require.NoError(t, err)
	assert.NotZero(t, m.ID)

	got, err := repo.Machine(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "M", got.Type)

	_, err = repo.Machine(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrMachineNotFound)

	_, err = repo.CreateMachine(ctx, domain.Machine{Code: "MCH-002"})
	assert.Error(t, err)

	p, err := repo.CreateProduct(ctx, domain.Product{Code: "PRD-001", Name: "Gear"})
	require.NoError(t, err)

	renamed, err := repo.RenameProduct(ctx, p.ID, "Helical gear")
	require.NoError(t, err)
	assert.Equal(t, "Helical gear", renamed.Name)

	_, err = repo.RenameProduct(ctx, 999, "x")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = repo.Product(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	machines, err := repo.Machines(ctx)
	require.NoError(t, err)
	assert.Len(t, machines, 1)

	products, err := repo.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Helical gear", products[0].Name)
}

func TestRepository_Logs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := repo.CreateLog(ctx, domain.LogRecord{
			MachineID:          1,
			ProductID:          1,
			AirTemperature:     300,
			ProcessTemperature: 310,
			RotationalSpeed:    1500,
			Torque:             40 + float64(i),
			ToolWear:           10,
			Prediction:         common.LabelNoFailure,
			CreatedAt:          base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	logs, err := repo.Logs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.InDelta(t, 42, logs[0].Torque, 1e-9)

	limited, err := repo.Logs(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = repo.Log(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}

func TestRepository_UpdateLogPrediction(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	rec, err := repo.CreateLog(ctx, domain.LogRecord{
		MachineID:          2,
		ProductID:          3,
		AirTemperature:     301.5,
		ProcessTemperature: 311.2,
		RotationalSpeed:    1400,
		Torque:             55,
		ToolWear:           210,
		Prediction:         common.LabelNoFailure,
	})
	require.NoError(t, err)

	updated, err := repo.UpdateLogPrediction(ctx, rec.ID, common.LabelFailure)
	require.NoError(t, err)
	assert.Equal(t, common.LabelFailure, updated.Prediction)
	assert.InDelta(t, rec.Torque, updated.Torque, 1e-9)
	assert.InDelta(t, rec.ToolWear, updated.ToolWear, 1e-9)
	assert.Equal(t, rec.MachineID, updated.MachineID)

	_, err = repo.UpdateLogPrediction(ctx, 999, common.LabelFailure)
	assert.ErrorIs(t, err, domain.ErrRecordNotFound)
}
