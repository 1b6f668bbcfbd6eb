// Package dataset loads the AI4I 2020 predictive maintenance CSV used to seed
// the catalog, and writes the scoring journal back out as training data.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"maintenance-classifier/internal/features"

	"github.com/rs/zerolog/log"
)

// AI4I column headers.
const (
	ColumnType               = "Type"
	ColumnAirTemperature     = "Air temperature [K]"
	ColumnProcessTemperature = "Process temperature [K]"
	ColumnRotationalSpeed    = "Rotational speed [rpm]"
	ColumnTorque             = "Torque [Nm]"
	ColumnToolWear           = "Tool wear [min]"
	ColumnMachineFailure     = "Machine failure"
)

var requiredColumns = []string{
	ColumnType,
	ColumnAirTemperature,
	ColumnProcessTemperature,
	ColumnRotationalSpeed,
	ColumnTorque,
	ColumnToolWear,
}

// Row is one usable dataset line.
type Row struct {
	Reading features.Reading
	// Failure is the ground truth; false when the column is absent.
	Failure bool
}

// Loader holds parsed rows and serves them in file order.
type Loader struct {
	rows    []Row
	index   int
	Skipped int
}

func NewLoader() *Loader {
	return &Loader{rows: make([]Row, 0)}
}

// LoadFromCSV reads the file at path.
func (l *Loader) LoadFromCSV(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	if err := l.Read(file); err != nil {
		return err
	}

	log.Info().
		Str("file", path).
		Int("rows", len(l.rows)).
		Int("skipped", l.Skipped).
		Msg("Dataset loaded")
	return nil
}

// Read parses AI4I rows from r. Rows that fail to parse or validate are
// skipped and counted.
func (l *Loader) Read(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}

	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := indices[col]; !ok {
			return fmt.Errorf("CSV header is missing column %q", col)
		}
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			l.Skipped++
			log.Debug().Err(err).Int("line", line).Msg("Skipping unreadable row")
			continue
		}

		row, err := parseRow(record, indices)
		if err != nil {
			l.Skipped++
			log.Debug().Err(err).Int("line", line).Msg("Skipping invalid row")
			continue
		}
		l.rows = append(l.rows, row)
	}

	return nil
}

func parseRow(record []string, indices map[string]int) (Row, error) {
	field := func(col string) string {
		i, ok := indices[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	number := func(col string) (float64, error) {
		v, err := strconv.ParseFloat(field(col), 64)
		if err != nil {
			return 0, fmt.Errorf("column %q: %w", col, err)
		}
		return v, nil
	}

	var (
		row  Row
		errs []error
		err  error
	)
	row.Reading.Type = features.ParseMachineType(field(ColumnType))
	if row.Reading.AirTemperature, err = number(ColumnAirTemperature); err != nil {
		errs = append(errs, err)
	}
	if row.Reading.ProcessTemperature, err = number(ColumnProcessTemperature); err != nil {
		errs = append(errs, err)
	}
	if row.Reading.RotationalSpeed, err = number(ColumnRotationalSpeed); err != nil {
		errs = append(errs, err)
	}
	if row.Reading.Torque, err = number(ColumnTorque); err != nil {
		errs = append(errs, err)
	}
	if row.Reading.ToolWear, err = number(ColumnToolWear); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return Row{}, errors.Join(errs...)
	}
	if err := row.Reading.Validate(); err != nil {
		return Row{}, err
	}

	if v := field(ColumnMachineFailure); v != "" {
		row.Failure = v == "1"
	}
	return row, nil
}

// Reset rewinds to the first row.
func (l *Loader) Reset() {
	l.index = 0
}

func (l *Loader) HasNext() bool {
	return l.index < len(l.rows)
}

// Next returns the next row, or the zero Row once exhausted.
func (l *Loader) Next() Row {
	if l.index >= len(l.rows) {
		return Row{}
	}
	row := l.rows[l.index]
	l.index++
	return row
}

func (l *Loader) Count() int {
	return len(l.rows)
}

// Types lists the distinct machine types in first-seen order.
func (l *Loader) Types() []features.MachineType {
	seen := make(map[features.MachineType]bool)
	var types []features.MachineType
	for _, r := range l.rows {
		if !seen[r.Reading.Type] {
			seen[r.Reading.Type] = true
			types = append(types, r.Reading.Type)
		}
	}
	return types
}
