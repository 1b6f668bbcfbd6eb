// Package domain holds the persisted entities shared by the storage backends:
// machines, productions and the prediction log records bound to them.
package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrMachineNotFound = errors.New("machine not found")
	ErrProductNotFound = errors.New("product not found")
	ErrRecordNotFound  = errors.New("log record not found")
)

// Machine is a piece of equipment whose type (H, M or L) drives feature encoding.
type Machine struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Code      string    `json:"machine_code" gorm:"size:10;index"`
	Type      string    `json:"type" gorm:"not null;size:50"`
	CreatedAt time.Time `json:"created_at"`
}

func (Machine) TableName() string { return "machines" }

// Product is the production batch a log record was taken for.
type Product struct {
	ID        uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	Code      string    `json:"product_code" gorm:"size:10;index"`
	Name      string    `json:"product_name" gorm:"not null;size:100"`
	CreatedAt time.Time `json:"created_at"`
}

func (Product) TableName() string { return "productions" }

// LogRecord is one telemetry observation with the verdict stored against it.
// Temperatures are kept in Kelvin.
type LogRecord struct {
	ID                 uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	MachineID          uint64    `json:"machine_id" gorm:"not null;index"`
	ProductID          uint64    `json:"product_id" gorm:"not null;index"`
	AirTemperature     float64   `json:"air_temperature"`
	ProcessTemperature float64   `json:"process_temperature"`
	RotationalSpeed    float64   `json:"rotational_speed"`
	Torque             float64   `json:"torque"`
	ToolWear           float64   `json:"tool_wear"`
	Prediction         string    `json:"prediction" gorm:"size:20"`
	CreatedAt          time.Time `json:"created_at" gorm:"index"`
}

func (LogRecord) TableName() string { return "machine_logs" }

// Repository is implemented by every storage backend. Logs are listed
// newest first; lookups of unknown ids return the matching Err*NotFound.
type Repository interface {
	CreateMachine(ctx context.Context, m Machine) (Machine, error)
	Machine(ctx context.Context, id uint64) (Machine, error)
	Machines(ctx context.Context) ([]Machine, error)

	CreateProduct(ctx context.Context, p Product) (Product, error)
	Product(ctx context.Context, id uint64) (Product, error)
	Products(ctx context.Context) ([]Product, error)
	RenameProduct(ctx context.Context, id uint64, name string) (Product, error)

	CreateLog(ctx context.Context, rec LogRecord) (LogRecord, error)
	Log(ctx context.Context, id uint64) (LogRecord, error)
	Logs(ctx context.Context, limit int) ([]LogRecord, error)
	// UpdateLogPrediction overwrites only the stored label.
	UpdateLogPrediction(ctx context.Context, id uint64, label string) (LogRecord, error)

	Close() error
}
