package cfg

import (
	"strings"
	"testing"
	"time"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/ml"
)

func validSettings() Settings {
	return Settings{
		HTTPPort:         8000,
		MetricsPort:      9090,
		DataPath:         "data",
		StorageDriver:    common.DriverBolt,
		ModelsDir:        "models/pkl",
		InferenceTimeout: 10 * time.Second,
		Models:           ml.DefaultSpecs("models/pkl"),
		LogLevel:         "info",
	}
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"http port too low", func(s *Settings) { s.HTTPPort = 80 }, "HTTP port"},
		{"metrics port too high", func(s *Settings) { s.MetricsPort = 70000 }, "metrics port"},
		{"same ports", func(s *Settings) { s.MetricsPort = s.HTTPPort }, "must differ"},
		{"timeout too short", func(s *Settings) { s.InferenceTimeout = 100 * time.Millisecond }, "inference timeout"},
		{"timeout too long", func(s *Settings) { s.InferenceTimeout = 5 * time.Minute }, "inference timeout"},
		{"unknown driver", func(s *Settings) { s.StorageDriver = "mysql" }, "storage driver"},
		{"postgres needs url", func(s *Settings) { s.StorageDriver = common.DriverPostgres }, common.EnvDatabaseURL},
		{"postgres with url", func(s *Settings) {
			s.StorageDriver = common.DriverPostgres
			s.DatabaseURL = "postgres://localhost/db"
		}, ""},
		{"empty data path", func(s *Settings) { s.DataPath = "" }, "data path"},
		{"no models", func(s *Settings) { s.Models = nil }, "at least one model"},
		{"unnamed model", func(s *Settings) { s.Models[0].Name = "" }, "name is required"},
		{"duplicate model", func(s *Settings) { s.Models[1].Name = s.Models[0].Name }, "configured twice"},
		{"python without path", func(s *Settings) { s.Models[0].Path = "" }, "path is required"},
		{"remote without url", func(s *Settings) { s.Models[0].Kind = common.KindRemote }, "url is required"},
		{"unknown kind", func(s *Settings) { s.Models[0].Kind = "tensorflow" }, "unknown kind"},
		{"bad log format", func(s *Settings) { s.LogFormat = "xml" }, "log format"},
		{"mqtt without broker", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Topic = "t"
		}, common.EnvMQTTBroker},
		{"mqtt without topic", func(s *Settings) {
			s.MQTT.Enabled = true
			s.MQTT.Broker = "tcp://b:1883"
		}, "topic"},
		{"bad qos", func(s *Settings) { s.MQTT.QoS = 3 }, "QoS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(&s)

			err := validateSettings(&s)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestApplyDerivedDefaults(t *testing.T) {
	s := Settings{
		ModelsDir:     "/srv/models",
		DataPath:      "/srv/data",
		StorageDriver: " SQLITE ",
		Models: []ml.ModelSpec{
			{Name: "a", Path: "a.pkl"},
			{Name: "b", Kind: common.KindLinear, Path: "/abs/b.json"},
		},
	}
	applyDerivedDefaults(&s)

	if s.StorageDriver != common.DriverSQLite {
		t.Errorf("expected normalized driver, got %q", s.StorageDriver)
	}
	if s.Models[0].Kind != common.KindPython || s.Models[0].Path != "/srv/models/a.pkl" {
		t.Errorf("unexpected first model %+v", s.Models[0])
	}
	if s.Models[1].Path != "/abs/b.json" {
		t.Errorf("absolute path rewritten: %s", s.Models[1].Path)
	}
	if s.ModelMetricsFile != "/srv/models/metrics.json" {
		t.Errorf("unexpected metrics file %s", s.ModelMetricsFile)
	}
	if s.DatabaseURL != "/srv/data/classifier.sqlite" {
		t.Errorf("unexpected sqlite path %s", s.DatabaseURL)
	}
}
