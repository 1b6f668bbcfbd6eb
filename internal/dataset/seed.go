package dataset

import (
	"context"
	"errors"
	"fmt"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/domain"
	"maintenance-classifier/internal/features"

	"github.com/rs/zerolog/log"
)

// ErrAlreadySeeded is returned when the catalog already holds log records.
var ErrAlreadySeeded = errors.New("catalog already holds log records")

// Catalog is the subset of domain.Repository the seeder writes to.
type Catalog interface {
	CreateMachine(ctx context.Context, m domain.Machine) (domain.Machine, error)
	CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error)
	CreateLog(ctx context.Context, rec domain.LogRecord) (domain.LogRecord, error)
	Logs(ctx context.Context, limit int) ([]domain.LogRecord, error)
}

// SeedOptions control how the dataset is spread across the catalog.
type SeedOptions struct {
	Products int
	// Limit caps the number of log records written; 0 means all rows.
	Limit int
}

// SeedSummary reports what Seed wrote.
type SeedSummary struct {
	Machines int
	Products int
	Logs     int
}

// Seed creates one machine per machine type, opts.Products productions and a
// log record per row labeled with the dataset's ground truth. Logs are
// assigned to the machine of their type and to productions round-robin.
func Seed(ctx context.Context, catalog Catalog, loader *Loader, opts SeedOptions) (SeedSummary, error) {
	existing, err := catalog.Logs(ctx, 1)
	if err != nil {
		return SeedSummary{}, fmt.Errorf("check existing logs: %w", err)
	}
	if len(existing) > 0 {
		return SeedSummary{}, ErrAlreadySeeded
	}
	if opts.Products <= 0 {
		opts.Products = 5
	}

	var summary SeedSummary
	machines := make(map[features.MachineType]uint64)
	for i, t := range loader.Types() {
		m, err := catalog.CreateMachine(ctx, domain.Machine{
			Code: fmt.Sprintf("MC-%04d", i+1),
			Type: string(t),
		})
		if err != nil {
			return summary, fmt.Errorf("create machine for type %s: %w", t, err)
		}
		machines[t] = m.ID
		summary.Machines++
	}

	products := make([]uint64, 0, opts.Products)
	for i := 0; i < opts.Products; i++ {
		p, err := catalog.CreateProduct(ctx, domain.Product{
			Code: fmt.Sprintf("PC-%04d", i+1),
			Name: fmt.Sprintf("Product %cAB", 'A'+i%26),
		})
		if err != nil {
			return summary, fmt.Errorf("create product %d: %w", i+1, err)
		}
		products = append(products, p.ID)
		summary.Products++
	}

	loader.Reset()
	for loader.HasNext() {
		if opts.Limit > 0 && summary.Logs >= opts.Limit {
			break
		}
		row := loader.Next()

		label := common.LabelNoFailure
		if row.Failure {
			label = common.LabelFailure
		}

		_, err := catalog.CreateLog(ctx, domain.LogRecord{
			MachineID:          machines[row.Reading.Type],
			ProductID:          products[summary.Logs%len(products)],
			AirTemperature:     row.Reading.AirTemperature,
			ProcessTemperature: row.Reading.ProcessTemperature,
			RotationalSpeed:    row.Reading.RotationalSpeed,
			Torque:             row.Reading.Torque,
			ToolWear:           row.Reading.ToolWear,
			Prediction:         label,
		})
		if err != nil {
			return summary, fmt.Errorf("create log %d: %w", summary.Logs+1, err)
		}
		summary.Logs++

		if summary.Logs%1000 == 0 {
			log.Info().Int("logs", summary.Logs).Msg("Seeding progress")
		}
	}

	log.Info().
		Int("machines", summary.Machines).
		Int("products", summary.Products).
		Int("logs", summary.Logs).
		Msg("Seeding complete")
	return summary, nil
}
