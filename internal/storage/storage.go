// Package storage provides embedded persistence for the classifier service.
// It uses BoltDB as the underlying storage engine for machines, productions,
// prediction log records and the scoring journal.
//
// Entities are stored as JSON under big-endian sequence keys so cursor order
// matches insertion order.
package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"maintenance-classifier/internal/domain"

	"go.etcd.io/bbolt"
)

const (
	machinesBucket = "machines"     // Bucket name for machine records
	productsBucket = "productions"  // Bucket name for production records
	logsBucket     = "machine_logs" // Bucket name for prediction log records

	dbFileName = "classifier-data.db"
)

// Store provides persistent storage using BoltDB. It implements
// domain.Repository and the scoring journal.
type Store struct {
	db  *bbolt.DB // BoltDB database instance
	now func() time.Time
}

var _ domain.Repository = (*Store)(nil)

// New creates a new storage instance with the specified data path.
// It initializes the BoltDB database and creates necessary buckets.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, dbFileName)

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{machinesBucket, productsBucket, logsBucket, scoringsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CreateMachine stores m under a fresh id and returns it.
func (s *Store) CreateMachine(ctx context.Context, m domain.Machine) (domain.Machine, error) {
	if err := ctx.Err(); err != nil {
		return domain.Machine{}, err
	}
	m.Type = strings.TrimSpace(m.Type)
	if m.Type == "" {
		return domain.Machine{}, fmt.Errorf("machine type is required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		id, err := insert(tx.Bucket([]byte(machinesBucket)), func(id uint64) any {
			m.ID = id
			return m
		})
		m.ID = id
		return err
	})
	if err != nil {
		return domain.Machine{}, fmt.Errorf("store machine: %w", err)
	}
	return m, nil
}

func (s *Store) Machine(ctx context.Context, id uint64) (domain.Machine, error) {
	var m domain.Machine
	if err := s.get(ctx, machinesBucket, id, &m, domain.ErrMachineNotFound); err != nil {
		return domain.Machine{}, err
	}
	return m, nil
}

func (s *Store) Machines(ctx context.Context) ([]domain.Machine, error) {
	out := []domain.Machine{}
	err := s.scan(ctx, machinesBucket, false, 0, func(data []byte) error {
		var m domain.Machine
		if err := json.Unmarshal(data, &m); err != nil {
			return nil
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

func (s *Store) CreateProduct(ctx context.Context, p domain.Product) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return domain.Product{}, fmt.Errorf("product name is required")
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		id, err := insert(tx.Bucket([]byte(productsBucket)), func(id uint64) any {
			p.ID = id
			return p
		})
		p.ID = id
		return err
	})
	if err != nil {
		return domain.Product{}, fmt.Errorf("store product: %w", err)
	}
	return p, nil
}

func (s *Store) Product(ctx context.Context, id uint64) (domain.Product, error) {
	var p domain.Product
	if err := s.get(ctx, productsBucket, id, &p, domain.ErrProductNotFound); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

func (s *Store) Products(ctx context.Context) ([]domain.Product, error) {
	out := []domain.Product{}
	err := s.scan(ctx, productsBucket, false, 0, func(data []byte) error {
		var p domain.Product
		if err := json.Unmarshal(data, &p); err != nil {
			return nil
		}
		out = append(out, p)
		return nil
	})
	return out, err
}

func (s *Store) RenameProduct(ctx context.Context, id uint64, name string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Product{}, fmt.Errorf("product name is required")
	}

	var p domain.Product
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(productsBucket))
		data := b.Get(itob(id))
		if data == nil {
			return domain.ErrProductNotFound
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("unmarshal product %d: %w", id, err)
		}
		p.Name = name
		return put(b, id, p)
	})
	if err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// CreateLog stores rec under a fresh id. The prediction label is stored as
// given.
func (s *Store) CreateLog(ctx context.Context, rec domain.LogRecord) (domain.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.LogRecord{}, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		id, err := insert(tx.Bucket([]byte(logsBucket)), func(id uint64) any {
			rec.ID = id
			return rec
		})
		rec.ID = id
		return err
	})
	if err != nil {
		return domain.LogRecord{}, fmt.Errorf("store log record: %w", err)
	}
	return rec, nil
}

func (s *Store) Log(ctx context.Context, id uint64) (domain.LogRecord, error) {
	var rec domain.LogRecord
	if err := s.get(ctx, logsBucket, id, &rec, domain.ErrRecordNotFound); err != nil {
		return domain.LogRecord{}, err
	}
	return rec, nil
}

// Logs returns up to limit records, newest first. limit <= 0 returns all.
func (s *Store) Logs(ctx context.Context, limit int) ([]domain.LogRecord, error) {
	out := []domain.LogRecord{}
	err := s.scan(ctx, logsBucket, true, limit, func(data []byte) error {
		var rec domain.LogRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}

// UpdateLogPrediction rewrites the label of record id inside a single
// transaction; readings and timestamps are left as stored.
func (s *Store) UpdateLogPrediction(ctx context.Context, id uint64, label string) (domain.LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return domain.LogRecord{}, err
	}

	var rec domain.LogRecord
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(logsBucket))
		data := b.Get(itob(id))
		if data == nil {
			return domain.ErrRecordNotFound
		}
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("unmarshal log record %d: %w", id, err)
		}
		rec.Prediction = label
		return put(b, id, rec)
	})
	if err != nil {
		return domain.LogRecord{}, err
	}
	return rec, nil
}

func (s *Store) get(ctx context.Context, bucket string, id uint64, dst any, notFound error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(bucket)).Get(itob(id))
		if data == nil {
			return notFound
		}
		if err := json.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("unmarshal %s %d: %w", bucket, id, err)
		}
		return nil
	})
}

// scan walks a bucket in key order (or reverse) and hands each value to fn,
// stopping after limit values when limit > 0. Malformed records are the
// caller's to skip.
func (s *Store) scan(ctx context.Context, bucket string, reverse bool, limit int, fn func([]byte) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucket)).Cursor()
		first, next := c.First, c.Next
		if reverse {
			first, next = c.Last, c.Prev
		}

		n := 0
		for k, v := first(); k != nil; k, v = next() {
			if limit > 0 && n >= limit {
				break
			}
			if err := fn(v); err != nil {
				return err
			}
			n++
		}
		return nil
	})
}

func insert(b *bbolt.Bucket, build func(id uint64) any) (uint64, error) {
	id, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return id, put(b, id, build(id))
}

func put(b *bbolt.Bucket, id uint64, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record %d: %w", id, err)
	}
	return b.Put(itob(id), data)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
