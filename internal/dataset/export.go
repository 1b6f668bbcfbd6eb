package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/storage"
)

// ExportHeader lists the columns written by WriteScorings. Per-model columns
// follow in the order given to WriteScorings.
func ExportHeader(models []string) []string {
	header := []string{"id", "timestamp", "source", "log_id"}
	header = append(header, features.Names...)
	for _, m := range models {
		header = append(header, m+"_label", m+"_confidence")
	}
	return append(header, "chosen_model", "chosen_label", "chosen_confidence")
}

// WriteScorings writes journal records as CSV. A model missing from a record,
// or failed in it, leaves its columns empty.
func WriteScorings(w io.Writer, models []string, records []storage.ScoringRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ExportHeader(models)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, rec := range records {
		row := []string{
			rec.ID,
			rec.Timestamp.UTC().Format(time.RFC3339Nano),
			rec.Source,
			formatID(rec.LogID),
		}
		for _, v := range rec.Features.Values() {
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}

		byModel := make(map[string]int, len(rec.PerModel))
		for i, v := range rec.PerModel {
			byModel[v.Model] = i
		}
		for _, m := range models {
			i, ok := byModel[m]
			if !ok || rec.PerModel[i].Failed {
				row = append(row, "", "")
				continue
			}
			v := rec.PerModel[i]
			row = append(row, v.Label, strconv.FormatFloat(v.Confidence, 'f', -1, 64))
		}

		row = append(row,
			rec.Chosen.Model,
			rec.Chosen.Label,
			strconv.FormatFloat(rec.Chosen.Confidence, 'f', -1, 64),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %s: %w", rec.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatID(id uint64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(id, 10)
}
