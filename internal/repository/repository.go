// Package repository stores machines, productions and prediction log
// records in a relational database through gorm. Postgres backs production
// deployments; sqlite serves single-node installs and tests.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/domain"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Repository implements domain.Repository on top of gorm.
type Repository struct {
	db *gorm.DB
}

var _ domain.Repository = (*Repository)(nil)

// Open connects to driver ("postgres" or "sqlite") at dsn and migrates the
// schema.
func Open(driver, dsn string) (*Repository, error) {
	var dialector gorm.Dialector
	switch driver {
	case common.DriverPostgres:
		dialector = postgres.Open(dsn)
	case common.DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s database: %w", driver, err)
	}

	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetConnMaxLifetime(time.Hour)
		if driver == common.DriverSQLite {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	r := New(db)
	if err := r.Migrate(); err != nil {
		return nil, err
	}

	log.Info().Str("driver", driver).Msg("Database connected and migrated")
	return r, nil
}

// New wraps an existing connection without migrating it.
func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate() error {
	if err := r.db.AutoMigrate(&domain.Machine{}, &domain.Product{}, &domain.LogRecord{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) CreateMachine(ctx context.Context, m domain.Machine) (domain.Machine, error) {
	m.ID = 0
	m.Type = strings.TrimSpace(m.Type)
	if m.Type == "" {
		return domain.Machine{}, fmt.Errorf("machine type is required")
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return domain.Machine{}, fmt.Errorf("create machine: %w", err)
	}
	return m, nil
}

func (r *Repository) Machine(ctx context.Context, id uint64) (domain.Machine, error) {
	var m domain.Machine
	if err := r.db.WithContext(ctx).First(&m, id).Error; err != nil {
		return domain.Machine{}, notFound(err, domain.ErrMachineNotFound)
	}
	return m, nil
}

func (r *Repository) Machines(ctx context.Context) ([]domain.Machine, error) {
	out := []domain.Machine{}
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	return out, nil
}

func (r *Repository) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	p.ID = 0
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Product{}, fmt.Errorf("product name is required")
	}
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}
	return p, nil
}

func (r *Repository) Product(ctx context.Context, id uint64) (domain.Product, error) {
	var p domain.Product
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return domain.Product{}, notFound(err, domain.ErrProductNotFound)
	}
	return p, nil
}

func (r *Repository) Products(ctx context.Context) ([]domain.Product, error) {
	out := []domain.Product{}
	if err := r.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return out, nil
}

func (r *Repository) RenameProduct(ctx context.Context, id uint64, name string) (domain.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("product name is required")
	}

	var p domain.Product
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			return notFound(err, domain.ErrProductNotFound)
		}
		p.Name = name
		return tx.Model(&p).Update("name", name).Error
	})
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (r *Repository) CreateLog(ctx context.Context, rec domain.LogRecord) (domain.LogRecord, error) {
	rec.ID = 0
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return domain.LogRecord{}, fmt.Errorf("create log record: %w", err)
	}
	return rec, nil
}

func (r *Repository) Log(ctx context.Context, id uint64) (domain.LogRecord, error) {
	var rec domain.LogRecord
	if err := r.db.WithContext(ctx).First(&rec, id).Error; err != nil {
		return domain.LogRecord{}, notFound(err, domain.ErrRecordNotFound)
	}
	return rec, nil
}

func (r *Repository) Logs(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	out := []domain.LogRecord{}
	q := r.db.WithContext(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list log records: %w", err)
	}
	return out, nil
}

// UpdateLogPrediction issues a single-column UPDATE so readings are never
// rewritten.
func (r *Repository) UpdateLogPrediction(ctx context.Context, id uint64, label string) (domain.LogRecord, error) {
	res := r.db.WithContext(ctx).Model(&domain.LogRecord{}).Where("id = ?", id).Update("prediction", label)
	if res.Error != nil {
		return domain.LogRecord{}, fmt.Errorf("update log prediction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.LogRecord{}, domain.ErrRecordNotFound
	}
	return r.Log(ctx, id)
}

func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}
