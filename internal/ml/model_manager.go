package ml

import (
	"encoding/json"
	"fmt"
	"os"

	"maintenance-classifier/internal/common"
)

// AccuracyTable maps a model name to its historical accuracy in [0,1].
type AccuracyTable map[string]float64

// ModelPerformance is one row of the accuracy table in registry order.
type ModelPerformance struct {
	Model    string  `json:"model"`
	Accuracy float64 `json:"accuracy"`
}

// DefaultAccuracy is used when the artifacts ship without a metrics table.
func DefaultAccuracy() AccuracyTable {
	return AccuracyTable{
		common.ModelLogisticRegression: common.DefaultAccuracyLogisticRegression,
		common.ModelRandomForest:       common.DefaultAccuracyRandomForest,
		common.ModelXGBoost:            common.DefaultAccuracyXGBoost,
	}
}

// LoadAccuracy reads the metrics table at path. A missing file is not an
// error and yields the defaults; a malformed one yields the defaults and the
// decode error so the caller can log it.
func LoadAccuracy(path string) (AccuracyTable, error) {
	if path == "" {
		return DefaultAccuracy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultAccuracy(), nil
		}
		return DefaultAccuracy(), err
	}

	var table AccuracyTable
	if err := json.Unmarshal(data, &table); err != nil {
		return DefaultAccuracy(), fmt.Errorf("decode metrics table %s: %w", path, err)
	}

	for name, acc := range table {
		if acc < 0 || acc > 1 {
			return DefaultAccuracy(), fmt.Errorf("accuracy for %s outside [0,1]: %f", name, acc)
		}
	}

	return table, nil
}
