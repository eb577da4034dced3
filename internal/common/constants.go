package common

import "time"

// Environment variable keys
const (
	EnvConfigFile          = "CONFIG_FILE"
	EnvEnvFile             = "ENV_FILE"
	EnvHTTPPort            = "HTTP_PORT"
	EnvMetricsPort         = "METRICS_PORT"
	EnvModelDir            = "MODEL_DIR"
	EnvDataPath            = "DATA_PATH"
	EnvChunkSize           = "CHUNK_SIZE"
	EnvMaxUploadBytes      = "MAX_UPLOAD_BYTES"
	EnvReadTimeout         = "READ_TIMEOUT"
	EnvWriteTimeout        = "WRITE_TIMEOUT"
	EnvShutdownTimeout     = "SHUTDOWN_TIMEOUT"
	EnvLogLevel            = "LOG_LEVEL"
	EnvLogFormat           = "LOG_FORMAT"
	EnvStrictSinglePredict = "STRICT_SINGLE_PREDICT"
	EnvServiceURL          = "SEPSIS_SERVICE_URL"
)

// Configuration defaults
const (
	DefaultEnvFile         = ".env"
	DefaultHTTPPort        = 5000
	DefaultMetricsPort     = 9100
	DefaultModelDir        = "models"
	DefaultChunkSize       = 5000
	DefaultMaxUploadBytes  = 256 << 20 // 256 MiB
	DefaultReadTimeout     = 60 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute // large batch uploads
	DefaultShutdownTimeout = 10 * time.Second
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "console"
	DefaultServiceURL      = "http://localhost:5000"
)

// Model artifact file names inside the model directory
const (
	ModelFile        = "model.json"
	ImputerFile      = "imputer.json"
	ScalerFile       = "scaler.json"
	FeatureNamesFile = "feature_names.json"
	MetricsFile      = "model_metrics.json"
	MetadataFile     = "model_metadata.json"
)

// Prediction labels as rendered in API responses
const (
	LabelPositive = "Sepsis Detected"
	LabelNegative = "No Sepsis"
)

// Clinical defaults used by the SIRS heuristic when a vital is absent
const (
	DefaultTemp = 37.0
	DefaultHR   = 70.0
	DefaultResp = 16.0
)

// ModelName is the key under which model metrics are reported.
const ModelName = "LightGBM"
