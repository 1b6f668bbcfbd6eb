package cfg

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"maintenance-classifier/internal/common"
	"maintenance-classifier/internal/ml"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	HTTPPort         int
	MetricsPort      int
	DataPath         string
	StorageDriver    string
	DatabaseURL      string
	ModelsDir        string
	ModelMetricsFile string
	InferenceTimeout time.Duration
	PythonPath       string
	Models           []ml.ModelSpec
	LogLevel         string
	LogFormat        string
	MQTT             MQTTSettings
}

type MQTTSettings struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	QoS      int
	Username string
	Password string
}

type ConfigFile struct {
	Server struct {
		HTTPPort    int    `yaml:"httpPort"`
		MetricsPort int    `yaml:"metricsPort"`
		LogLevel    string `yaml:"logLevel"`
		LogFormat   string `yaml:"logFormat"`
	} `yaml:"server"`

	Storage struct {
		Driver      string `yaml:"driver"`
		DataPath    string `yaml:"dataPath"`
		DatabaseURL string `yaml:"databaseURL"`
	} `yaml:"storage"`

	ML struct {
		ModelsDir        string         `yaml:"modelsDir"`
		MetricsFile      string         `yaml:"metricsFile"`
		InferenceTimeout string         `yaml:"inferenceTimeout"`
		PythonPath       string         `yaml:"pythonPath"`
		Models           []ml.ModelSpec `yaml:"models"`
	} `yaml:"ml"`

	MQTT struct {
		Enabled  bool   `yaml:"enabled"`
		Broker   string `yaml:"broker"`
		Topic    string `yaml:"topic"`
		ClientID string `yaml:"clientID"`
		QoS      int    `yaml:"qos"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	} `yaml:"mqtt"`
}

// Load reads an optional .env file, then the YAML file named by CONFIG_FILE
// if set, otherwise the environment alone. Environment values win over YAML.
func Load() (Settings, error) {
	_ = godotenv.Load()

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	inferenceTimeout, err := time.ParseDuration(config.ML.InferenceTimeout)
	if err != nil {
		inferenceTimeout = 10 * time.Second
	}

	settings := Settings{
		HTTPPort:         getIntFromEnvOrConfig(common.EnvHTTPPort, config.Server.HTTPPort, common.DefaultHTTPPort),
		MetricsPort:      getIntFromEnvOrConfig(common.EnvMetricsPort, config.Server.MetricsPort, common.DefaultMetricsPort),
		DataPath:         getEnvOrDefault(common.EnvDataPath, orDefault(config.Storage.DataPath, common.DefaultDataPath)),
		StorageDriver:    getEnvOrDefault(common.EnvStorageDriver, orDefault(config.Storage.Driver, common.DefaultStorageDriver)),
		DatabaseURL:      getEnvOrDefault(common.EnvDatabaseURL, config.Storage.DatabaseURL),
		ModelsDir:        getEnvOrDefault(common.EnvModelsDir, orDefault(config.ML.ModelsDir, common.DefaultModelsDir)),
		ModelMetricsFile: getEnvOrDefault(common.EnvModelMetricsFile, config.ML.MetricsFile),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, inferenceTimeout),
		PythonPath:       getEnvOrDefault(common.EnvPythonPath, config.ML.PythonPath),
		Models:           config.ML.Models,
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, orDefault(config.Server.LogLevel, common.DefaultLogLevel)),
		LogFormat:        getEnvOrDefault(common.EnvLogFormat, config.Server.LogFormat),
		MQTT: MQTTSettings{
			Enabled:  getBoolFromEnvOrConfig(common.EnvMQTTEnabled, config.MQTT.Enabled),
			Broker:   getEnvOrDefault(common.EnvMQTTBroker, config.MQTT.Broker),
			Topic:    getEnvOrDefault(common.EnvMQTTTopic, orDefault(config.MQTT.Topic, common.DefaultMQTTTopic)),
			ClientID: getEnvOrDefault(common.EnvMQTTClientID, orDefault(config.MQTT.ClientID, common.DefaultMQTTClientID)),
			QoS:      getIntFromEnvOrConfig(common.EnvMQTTQoS, config.MQTT.QoS, 0),
			Username: config.MQTT.Username,
			Password: config.MQTT.Password,
		},
	}

	applyDerivedDefaults(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		HTTPPort:         getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		MetricsPort:      getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		DataPath:         getEnvOrDefault(common.EnvDataPath, common.DefaultDataPath),
		StorageDriver:    getEnvOrDefault(common.EnvStorageDriver, common.DefaultStorageDriver),
		DatabaseURL:      os.Getenv(common.EnvDatabaseURL),
		ModelsDir:        getEnvOrDefault(common.EnvModelsDir, common.DefaultModelsDir),
		ModelMetricsFile: os.Getenv(common.EnvModelMetricsFile),
		InferenceTimeout: getDurationOrDefault(common.EnvInferenceTimeout, 10*time.Second),
		PythonPath:       os.Getenv(common.EnvPythonPath),
		LogLevel:         getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:        os.Getenv(common.EnvLogFormat),
		MQTT: MQTTSettings{
			Enabled:  getBoolOrDefault(common.EnvMQTTEnabled, false),
			Broker:   os.Getenv(common.EnvMQTTBroker),
			Topic:    getEnvOrDefault(common.EnvMQTTTopic, common.DefaultMQTTTopic),
			ClientID: getEnvOrDefault(common.EnvMQTTClientID, common.DefaultMQTTClientID),
			QoS:      getIntOrDefault(common.EnvMQTTQoS, 0),
		},
	}

	applyDerivedDefaults(&settings)

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// applyDerivedDefaults fills values that depend on other settings.
func applyDerivedDefaults(s *Settings) {
	s.StorageDriver = strings.ToLower(strings.TrimSpace(s.StorageDriver))
	if len(s.Models) == 0 {
		s.Models = ml.DefaultSpecs(s.ModelsDir)
	}
	for i := range s.Models {
		if s.Models[i].Kind == "" {
			s.Models[i].Kind = common.KindPython
		}
		if s.Models[i].Path != "" && !filepath.IsAbs(s.Models[i].Path) && filepath.Dir(s.Models[i].Path) == "." {
			s.Models[i].Path = filepath.Join(s.ModelsDir, s.Models[i].Path)
		}
	}
	if s.ModelMetricsFile == "" {
		s.ModelMetricsFile = filepath.Join(s.ModelsDir, common.DefaultModelMetricsFile)
	}
	if s.StorageDriver == common.DriverSQLite && s.DatabaseURL == "" {
		s.DatabaseURL = filepath.Join(s.DataPath, "classifier.sqlite")
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.HTTPPort < common.MinPort || settings.HTTPPort > common.MaxPort {
		return fmt.Errorf("HTTP port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.HTTPPort)
	}
	if settings.MetricsPort < common.MinPort || settings.MetricsPort > common.MaxPort {
		return fmt.Errorf("metrics port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.MetricsPort)
	}
	if settings.HTTPPort == settings.MetricsPort {
		return fmt.Errorf("HTTP and metrics ports must differ, both are %d", settings.HTTPPort)
	}

	minTimeout := common.MinInferenceSeconds * time.Second
	maxTimeout := common.MaxInferenceSeconds * time.Second
	if settings.InferenceTimeout < minTimeout || settings.InferenceTimeout > maxTimeout {
		return fmt.Errorf("inference timeout must be between %v and %v, got %v", minTimeout, maxTimeout, settings.InferenceTimeout)
	}

	switch settings.StorageDriver {
	case common.DriverBolt, common.DriverSQLite:
	case common.DriverPostgres:
		if settings.DatabaseURL == "" {
			return fmt.Errorf("%s is required for the postgres driver", common.EnvDatabaseURL)
		}
	default:
		return fmt.Errorf("storage driver must be one of %s, %s, %s, got %q",
			common.DriverBolt, common.DriverPostgres, common.DriverSQLite, settings.StorageDriver)
	}
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}

	if len(settings.Models) == 0 {
		return fmt.Errorf("at least one model must be configured")
	}
	seen := make(map[string]bool, len(settings.Models))
	for i, m := range settings.Models {
		if m.Name == "" {
			return fmt.Errorf("model %d: name is required", i)
		}
		if seen[m.Name] {
			return fmt.Errorf("model %s is configured twice", m.Name)
		}
		seen[m.Name] = true

		switch m.Kind {
		case common.KindPython, common.KindLinear:
			if m.Path == "" {
				return fmt.Errorf("model %s: path is required for kind %s", m.Name, m.Kind)
			}
		case common.KindRemote:
			if m.URL == "" {
				return fmt.Errorf("model %s: url is required for kind %s", m.Name, m.Kind)
			}
		default:
			return fmt.Errorf("model %s: unknown kind %q", m.Name, m.Kind)
		}
	}

	switch strings.ToLower(settings.LogFormat) {
	case "", "json", "console":
	default:
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	if settings.MQTT.Enabled {
		if settings.MQTT.Broker == "" {
			return fmt.Errorf("%s is required when MQTT ingestion is enabled", common.EnvMQTTBroker)
		}
		if settings.MQTT.Topic == "" {
			return fmt.Errorf("MQTT topic cannot be empty")
		}
	}
	if settings.MQTT.QoS < 0 || settings.MQTT.QoS > 2 {
		return fmt.Errorf("MQTT QoS must be 0, 1 or 2, got %d", settings.MQTT.QoS)
	}

	return nil
}
