package ml

import (
	"context"
	"fmt"
	"time"

	"maintenance-classifier/internal/features"

	"github.com/go-resty/resty/v2"
)

// RemoteClassifier scores against a model server over HTTP.
type RemoteClassifier struct {
	url  string
	rest *resty.Client
}

type remoteRequest struct {
	Columns  []string           `json:"columns"`
	Features map[string]float64 `json:"features"`
}

func NewRemoteClassifier(url string, timeout time.Duration) *RemoteClassifier {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second)
	}
	r.SetHeader("Accept", "application/json")
	return &RemoteClassifier{url: url, rest: r}
}

func (c *RemoteClassifier) Predict(ctx context.Context, v features.Vector) (Prediction, error) {
	result := &inferenceResponse{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(remoteRequest{Columns: features.Names, Features: v.Map()}).
		SetResult(result).
		SetError(result).
		Post(c.url)
	if err != nil {
		return Prediction{}, fmt.Errorf("remote model %s: %w", c.url, err)
	}
	if resp.IsError() {
		if result.Error != "" {
			return Prediction{}, fmt.Errorf("remote model %s: %d %s", c.url, resp.StatusCode(), result.Error)
		}
		return Prediction{}, fmt.Errorf("remote model %s: status %d", c.url, resp.StatusCode())
	}
	if result.Error != "" {
		return Prediction{}, fmt.Errorf("remote model %s: %s", c.url, result.Error)
	}

	pred := Prediction{Class: result.Prediction, Probabilities: result.Probabilities}
	if err := validatePrediction(pred); err != nil {
		return Prediction{}, err
	}
	return pred, nil
}
