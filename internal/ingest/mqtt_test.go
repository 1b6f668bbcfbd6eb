package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"maintenance-classifier/internal/domain"
	"maintenance-classifier/internal/features"
	"maintenance-classifier/internal/ml"
	"maintenance-classifier/internal/prediction"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCreator struct {
	mu   sync.Mutex
	reqs []prediction.CreateRequest
	err  error
}

func (f *fakeCreator) CreateWithPrediction(ctx context.Context, req prediction.CreateRequest) (prediction.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return prediction.Outcome{}, f.err
	}
	return prediction.Outcome{Record: domain.LogRecord{ID: uint64(len(f.reqs)), Prediction: "Rusak"}}, nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *countingMetrics) IngestMessageInc(result string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = make(map[string]int)
	}
	c.counts[result]++
}

func TestParsePayload(t *testing.T) {
	req, err := ParsePayload("machines/telemetry", []byte(`{
		"machine_id": 3,
		"product_id": "5",
		"air_temperature": 298.1,
		"process_temperature": "308.6",
		"rotational_speed": 1551,
		"torque": 42.8,
		"tool_wear": 0
	}`))
	require.NoError(t, err)

	assert.Equal(t, uint64(3), req.MachineID)
	assert.Equal(t, uint64(5), req.ProductID)
	assert.Equal(t, prediction.SourceIngest, req.Source)
	require.NotNil(t, req.Reading.ProcessTemperature)
	assert.InDelta(t, 308.6, *req.Reading.ProcessTemperature, 1e-9)
	require.NotNil(t, req.Reading.ToolWear)
	assert.Equal(t, 0.0, *req.Reading.ToolWear)

	reading, err := req.Reading.Normalize()
	require.NoError(t, err)
	assert.InDelta(t, 1551, reading.RotationalSpeed, 1e-9)
}

func TestParsePayload_FormFieldNames(t *testing.T) {
	req, err := ParsePayload("", []byte(`{
		"machine_id": 1, "product_id": 1,
		"Air_temperature_K": 300, "Process_temperature_K": 310,
		"Rotational_speed_rpm": 1400, "Torque_Nm": 50, "Tool_wear_min": 120
	}`))
	require.NoError(t, err)
	require.NotNil(t, req.Reading.Torque)
	assert.Equal(t, 50.0, *req.Reading.Torque)
}

func TestParsePayload_MachineFromTopic(t *testing.T) {
	req, err := ParsePayload("plant/machines/17/telemetry", []byte(`{"product_id": 2, "torque": 40, "unit": "c"}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(17), req.MachineID)
	assert.Equal(t, features.Celsius, req.Reading.Unit)
	assert.Nil(t, req.Reading.AirTemperature)
}

func TestParsePayload_Errors(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"not json", "machines/1/telemetry", `torque=40`},
		{"no machine", "telemetry", `{"product_id": 1}`},
		{"bad machine id", "telemetry", `{"machine_id": "abc", "product_id": 1}`},
		{"no product", "machines/1/telemetry", `{"torque": 1}`},
		{"bad number", "machines/1/telemetry", `{"product_id": 1, "torque": "high"}`},
		{"boolean reading", "machines/1/telemetry", `{"product_id": 1, "air_temperature": true}`},
		{"empty machine id", "telemetry", `{"machine_id": "", "product_id": 1}`},
		{"fractional machine id", "telemetry", `{"machine_id": 1.9, "product_id": 1}`},
		{"zero machine id", "telemetry", `{"machine_id": 0, "product_id": 1}`},
		{"negative product id", "machines/1/telemetry", `{"product_id": -2}`},
		{"blank product id", "machines/1/telemetry", `{"product_id": "  "}`},
		{"boolean product id", "machines/1/telemetry", `{"product_id": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload(tt.topic, []byte(tt.payload))
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestParsePayload_BlankReadingIsMissing(t *testing.T) {
	for _, blank := range []string{`""`, `"   "`, `null`} {
		t.Run(blank, func(t *testing.T) {
			req, err := ParsePayload("machines/1/telemetry", []byte(`{
				"product_id": 1, "air_temperature": `+blank+`,
				"process_temperature": 308, "rotational_speed": 1500, "torque": 40, "tool_wear": 10
			}`))
			require.NoError(t, err)
			assert.Nil(t, req.Reading.AirTemperature)

			_, err = req.Reading.Normalize()
			var invalid *features.InvalidReadingError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, "air_temperature", invalid.Field)
		})
	}
}

func TestParsePayload_BlankMachineIDFallsBackToTopic(t *testing.T) {
	req, err := ParsePayload("machines/9/telemetry", []byte(`{"machine_id": "", "product_id": "3"}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(9), req.MachineID)
	assert.Equal(t, uint64(3), req.ProductID)
}

func TestSubscriber_Handle(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"product_id":1,"air_temperature":298,"process_temperature":308,"rotational_speed":1500,"torque":40,"tool_wear":10}`)

	t.Run("accepted", func(t *testing.T) {
		creator := &fakeCreator{}
		metrics := &countingMetrics{}
		sub := NewSubscriber(Config{Topic: "machines/+/telemetry"}, creator, metrics)

		assert.Equal(t, ResultAccepted, sub.Handle(ctx, "machines/4/telemetry", payload))
		require.Len(t, creator.reqs, 1)
		assert.Equal(t, uint64(4), creator.reqs[0].MachineID)
		assert.Equal(t, 1, metrics.counts[ResultAccepted])
	})

	t.Run("rejected payload never reaches creator", func(t *testing.T) {
		creator := &fakeCreator{}
		metrics := &countingMetrics{}
		sub := NewSubscriber(Config{}, creator, metrics)

		assert.Equal(t, ResultRejected, sub.Handle(ctx, "x", []byte(`[]`)))
		assert.Empty(t, creator.reqs)
		assert.Equal(t, 1, metrics.counts[ResultRejected])
	})

	t.Run("boolean reading never reaches creator", func(t *testing.T) {
		creator := &fakeCreator{}
		metrics := &countingMetrics{}
		sub := NewSubscriber(Config{}, creator, metrics)

		bogus := []byte(`{"product_id":1,"air_temperature":true,"process_temperature":308,"rotational_speed":1500,"torque":40,"tool_wear":10}`)
		assert.Equal(t, ResultRejected, sub.Handle(ctx, "machines/4/telemetry", bogus))
		assert.Empty(t, creator.reqs)
		assert.Equal(t, 1, metrics.counts[ResultRejected])
	})

	t.Run("invalid reading is rejected", func(t *testing.T) {
		creator := &fakeCreator{err: &features.InvalidReadingError{Field: "torque", Reason: "is missing"}}
		sub := NewSubscriber(Config{}, creator, nil)
		assert.Equal(t, ResultRejected, sub.Handle(ctx, "machines/4/telemetry", payload))
	})

	t.Run("scoring failure", func(t *testing.T) {
		creator := &fakeCreator{err: errors.Join(ml.ErrModelsUnavailable)}
		sub := NewSubscriber(Config{}, creator, nil)
		assert.Equal(t, ResultFailed, sub.Handle(ctx, "machines/4/telemetry", payload))
	})
}

func TestSubscriber_StopWithoutStart(t *testing.T) {
	sub := NewSubscriber(Config{}, &fakeCreator{}, nil)
	sub.Stop()
	sub.Stop()
}
