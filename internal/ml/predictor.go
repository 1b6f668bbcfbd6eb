package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"maintenance-classifier/internal/features"

	"github.com/rs/zerolog/log"
)

const inferenceScriptName = "classifier_inference.py"

// PythonClassifier scores a serialized scikit-learn / XGBoost pipeline
// (joblib or pickle) or an ONNX export by running an inference script per call.
type PythonClassifier struct {
	modelPath  string
	pythonPath string
	scriptPath string
	timeout    time.Duration
}

type inferenceRequest struct {
	Columns  []string  `json:"columns"`
	Features []float64 `json:"features"`
}

type inferenceResponse struct {
	Prediction    int       `json:"prediction"`
	Probabilities []float64 `json:"probabilities"`
	Error         string    `json:"error,omitempty"`
}

// NewPythonClassifier locates a Python interpreter and the inference script
// for modelPath. pythonPath may be empty to search the usual locations.
func NewPythonClassifier(modelPath, pythonPath string, timeout time.Duration) (*PythonClassifier, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model artifact %s: %w", modelPath, err)
	}

	if pythonPath == "" {
		var err error
		pythonPath, err = findPython()
		if err != nil {
			return nil, err
		}
	}

	scriptPath, err := resolveInferenceScript(modelPath)
	if err != nil {
		return nil, err
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &PythonClassifier{
		modelPath:  modelPath,
		pythonPath: pythonPath,
		scriptPath: scriptPath,
		timeout:    timeout,
	}, nil
}

// resolveInferenceScript prefers a script shipped next to the model and
// falls back to writing the embedded one there.
func resolveInferenceScript(modelPath string) (string, error) {
	scriptDir := filepath.Dir(modelPath)
	scriptPath := filepath.Join(scriptDir, "inference.py")
	if _, err := os.Stat(scriptPath); err == nil {
		return scriptPath, nil
	}

	scriptPath = filepath.Join(scriptDir, inferenceScriptName)
	if _, err := os.Stat(scriptPath); err == nil {
		return scriptPath, nil
	}
	if err := createInferenceScript(scriptPath); err != nil {
		return "", fmt.Errorf("create inference script: %w", err)
	}
	return scriptPath, nil
}

func (p *PythonClassifier) Predict(ctx context.Context, v features.Vector) (Prediction, error) {
	req := inferenceRequest{Columns: features.Names, Features: v.Values()}
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return Prediction{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.pythonPath, p.scriptPath, p.modelPath)
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("python_path", p.pythonPath).
			Str("script_path", p.scriptPath).
			Str("model_path", p.modelPath).
			Str("stderr", stderr.String()).
			Str("stdout", stdout.String()).
			Dur("timeout", p.timeout).
			Msg("Python inference execution failed")

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Prediction{}, fmt.Errorf("prediction timeout after %v", p.timeout)
		}
		if ctx.Err() != nil {
			return Prediction{}, ctx.Err()
		}

		var resp inferenceResponse
		if json.Unmarshal(stdout.Bytes(), &resp) == nil && resp.Error != "" {
			return Prediction{}, fmt.Errorf("python inference error: %s", resp.Error)
		}
		if strings.Contains(stderr.String(), "No module named") {
			return Prediction{}, fmt.Errorf("python dependency missing: %w, stderr: %s", err, stderr.String())
		}
		return Prediction{}, fmt.Errorf("python inference failed: %w, stderr: %s", err, stderr.String())
	}

	var resp inferenceResponse
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Prediction{}, fmt.Errorf("failed to parse response: %w, stdout: %s", err, stdout.String())
	}
	if resp.Error != "" {
		return Prediction{}, fmt.Errorf("python inference error: %s", resp.Error)
	}

	pred := Prediction{Class: resp.Prediction, Probabilities: resp.Probabilities}
	if err := validatePrediction(pred); err != nil {
		return Prediction{}, err
	}

	log.Debug().
		Str("model_path", p.modelPath).
		Int("prediction", pred.Class).
		Floats64("probabilities", pred.Probabilities).
		Msg("Prediction successful")

	return pred, nil
}

func findPython() (string, error) {
	probe := "import sys, joblib; print('Python', sys.version)"

	if venvPath := os.Getenv("VIRTUAL_ENV"); venvPath != "" {
		candidates := []string{
			filepath.Join(venvPath, "bin", "python3"),
			filepath.Join(venvPath, "bin", "python"),
			filepath.Join(venvPath, "Scripts", "python.exe"),
		}
		for _, venvPython := range candidates {
			if _, err := os.Stat(venvPython); err == nil && pythonWorks(venvPython, probe) {
				log.Info().Str("python_path", venvPython).Msg("Using virtual environment Python")
				return venvPython, nil
			}
		}
	}

	if execPath, err := os.Executable(); err == nil {
		execDir := filepath.Dir(execPath)
		for _, root := range []string{execDir, filepath.Dir(execDir)} {
			for _, venvPython := range []string{
				filepath.Join(root, "venv", "bin", "python3"),
				filepath.Join(root, ".venv", "bin", "python3"),
			} {
				if _, err := os.Stat(venvPython); err == nil && pythonWorks(venvPython, probe) {
					log.Info().Str("python_path", venvPython).Msg("Using project virtual environment Python")
					return venvPython, nil
				}
			}
		}
	}

	candidates := []string{"python3", "python", "python3.12", "python3.11", "python3.10"}
	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil && pythonWorks(path, probe) {
			log.Info().Str("python_path", path).Msg("Using system Python")
			return path, nil
		}
	}

	return "", fmt.Errorf("no Python 3 interpreter with joblib found")
}

func pythonWorks(path, probe string) bool {
	output, err := exec.Command(path, "-c", probe).Output()
	return err == nil && strings.Contains(string(output), "Python 3")
}

func createInferenceScript(scriptPath string) error {
	script := `#!/usr/bin/env python3
"""
Failure classifier inference script (embedded version).
Reads {"columns": [...], "features": [...]} from stdin and prints
{"prediction": n, "probabilities": [...]}.
"""
import sys
import json

def load_model(path):
    if path.endswith(".onnx"):
        import onnxruntime as ort
        return ("onnx", ort.InferenceSession(path))
    import joblib
    return ("sklearn", joblib.load(path))

def main():
    if len(sys.argv) != 2:
        print(json.dumps({"error": "Usage: classifier_inference.py <model_path>"}))
        sys.exit(1)

    try:
        request = json.load(sys.stdin)
        kind, model = load_model(sys.argv[1])

        if kind == "onnx":
            import numpy as np
            features = np.array([request["features"]], dtype=np.float32)
            input_name = model.get_inputs()[0].name
            outputs = model.run(None, {input_name: features})
            prediction = int(outputs[0][0])
            probabilities = []
            if len(outputs) > 1:
                probs = outputs[1][0]
                if isinstance(probs, dict):
                    probabilities = [float(probs.get(0, 0.0)), float(probs.get(1, 0.0))]
                else:
                    probabilities = [float(p) for p in probs]
        else:
            import pandas as pd
            frame = pd.DataFrame([request["features"]], columns=request["columns"])
            prediction = int(model.predict(frame)[0])
            probabilities = []
            if hasattr(model, "predict_proba"):
                probabilities = [float(p) for p in model.predict_proba(frame)[0]]

        print(json.dumps({"prediction": prediction, "probabilities": probabilities}))

    except Exception as e:
        print(json.dumps({"error": str(e)}))
        sys.exit(1)

if __name__ == "__main__":
    main()
`

	return os.WriteFile(scriptPath, []byte(script), 0o755)
}
