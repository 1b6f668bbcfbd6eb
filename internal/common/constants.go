package common

// Verdict labels stored against log records.
const (
	LabelFailure   = "Rusak"
	LabelNoFailure = "Tidak Rusak"
)

// Ensemble members in registration (and tie-break) order.
const (
	ModelLogisticRegression = "LogisticRegression"
	ModelRandomForest       = "RandomForest"
	ModelXGBoost            = "XGBoost"
)

// Model artifact kinds
const (
	KindPython = "python"
	KindLinear = "linear"
	KindRemote = "remote"
)

// Storage drivers
const (
	DriverBolt     = "bolt"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Environment variable keys
const (
	EnvConfigFile       = "CONFIG_FILE"
	EnvHTTPPort         = "HTTP_PORT"
	EnvMetricsPort      = "METRICS_PORT"
	EnvDataPath         = "DATA_PATH"
	EnvStorageDriver    = "STORAGE_DRIVER"
	EnvDatabaseURL      = "DATABASE_URL"
	EnvModelsDir        = "MODELS_DIR"
	EnvModelMetricsFile = "MODEL_METRICS_FILE"
	EnvInferenceTimeout = "INFERENCE_TIMEOUT"
	EnvPythonPath       = "PYTHON_PATH"
	EnvLogLevel         = "LOG_LEVEL"
	EnvLogFormat        = "LOG_FORMAT"
	EnvMQTTEnabled      = "MQTT_ENABLED"
	EnvMQTTBroker       = "MQTT_BROKER"
	EnvMQTTTopic        = "MQTT_TOPIC"
	EnvMQTTClientID     = "MQTT_CLIENT_ID"
	EnvMQTTQoS          = "MQTT_QOS"
)

// Configuration defaults
const (
	DefaultHTTPPort         = 8000
	DefaultMetricsPort      = 9090
	DefaultStorageDriver    = DriverBolt
	DefaultDataPath         = "data"
	DefaultModelsDir        = "models/pkl"
	DefaultModelMetricsFile = "metrics.json"
	DefaultMQTTTopic        = "machines/+/telemetry"
	DefaultMQTTClientID     = "maintenance-classifier"
	DefaultLogLevel         = "info"
)

// Default artifact file names inside the models directory.
const (
	LogisticRegressionArtifact = "logreg_pipeline.pkl"
	RandomForestArtifact       = "random_forest_pipeline.pkl"
	XGBoostArtifact            = "xgb_pipeline.pkl"
)

// Historical accuracies used when no metrics table is shipped with the models.
const (
	DefaultAccuracyLogisticRegression = 0.85
	DefaultAccuracyRandomForest       = 0.92
	DefaultAccuracyXGBoost            = 0.95
)

// Validation constants
const (
	MinPort             = 1024
	MaxPort             = 65535
	MinInferenceSeconds = 1
	MaxInferenceSeconds = 60
)
