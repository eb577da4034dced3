package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"sepsis-predictor/internal/common"
)

type Settings struct {
	HTTPPort            int
	MetricsPort         int // 0 disables the metrics listener
	ModelDir            string
	DataPath            string // optional; enables the batch-run audit store
	ChunkSize           int
	MaxUploadBytes      int64
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	ShutdownTimeout     time.Duration
	LogLevel            string
	LogFormat           string
	StrictSinglePredict bool
}

type ConfigFile struct {
	Server struct {
		HTTPPort        int    `yaml:"httpPort"`
		MetricsPort     int    `yaml:"metricsPort"`
		ReadTimeout     string `yaml:"readTimeout"`
		WriteTimeout    string `yaml:"writeTimeout"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
		MaxUploadBytes  int64  `yaml:"maxUploadBytes"`
	} `yaml:"server"`

	Model struct {
		Dir                 string `yaml:"dir"`
		StrictSinglePredict bool   `yaml:"strictSinglePredict"`
	} `yaml:"model"`

	Batch struct {
		ChunkSize int `yaml:"chunkSize"`
	} `yaml:"batch"`

	System struct {
		DataPath  string `yaml:"dataPath"`
		LogLevel  string `yaml:"logLevel"`
		LogFormat string `yaml:"logFormat"`
	} `yaml:"system"`
}

// Load reads the optional .env file, then the YAML file named by CONFIG_FILE if
// set, and finally environment variables, which always take precedence.
func Load() (Settings, error) {
	if err := loadDotEnv(getEnvOrDefault(common.EnvEnvFile, common.DefaultEnvFile)); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

// loadDotEnv loads path without overriding variables that are already set. A
// missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
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

	settings := Settings{
		HTTPPort:            getIntFromEnvOrConfig(common.EnvHTTPPort, config.Server.HTTPPort, common.DefaultHTTPPort),
		MetricsPort:         getIntFromEnvOrConfig(common.EnvMetricsPort, config.Server.MetricsPort, common.DefaultMetricsPort),
		ModelDir:            getEnvOrDefault(common.EnvModelDir, stringOr(config.Model.Dir, common.DefaultModelDir)),
		DataPath:            getEnvOrDefault(common.EnvDataPath, config.System.DataPath),
		ChunkSize:           getIntFromEnvOrConfig(common.EnvChunkSize, config.Batch.ChunkSize, common.DefaultChunkSize),
		MaxUploadBytes:      getInt64FromEnvOrConfig(common.EnvMaxUploadBytes, config.Server.MaxUploadBytes, common.DefaultMaxUploadBytes),
		ReadTimeout:         getDurationFromEnvOrConfig(common.EnvReadTimeout, config.Server.ReadTimeout, common.DefaultReadTimeout),
		WriteTimeout:        getDurationFromEnvOrConfig(common.EnvWriteTimeout, config.Server.WriteTimeout, common.DefaultWriteTimeout),
		ShutdownTimeout:     getDurationFromEnvOrConfig(common.EnvShutdownTimeout, config.Server.ShutdownTimeout, common.DefaultShutdownTimeout),
		LogLevel:            getEnvOrDefault(common.EnvLogLevel, stringOr(config.System.LogLevel, common.DefaultLogLevel)),
		LogFormat:           getEnvOrDefault(common.EnvLogFormat, stringOr(config.System.LogFormat, common.DefaultLogFormat)),
		StrictSinglePredict: getBoolFromEnvOrConfig(common.EnvStrictSinglePredict, config.Model.StrictSinglePredict),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		HTTPPort:            getIntOrDefault(common.EnvHTTPPort, common.DefaultHTTPPort),
		MetricsPort:         getIntOrDefault(common.EnvMetricsPort, common.DefaultMetricsPort),
		ModelDir:            getEnvOrDefault(common.EnvModelDir, common.DefaultModelDir),
		DataPath:            os.Getenv(common.EnvDataPath), // optional
		ChunkSize:           getIntOrDefault(common.EnvChunkSize, common.DefaultChunkSize),
		MaxUploadBytes:      getInt64OrDefault(common.EnvMaxUploadBytes, common.DefaultMaxUploadBytes),
		ReadTimeout:         getDurationOrDefault(common.EnvReadTimeout, common.DefaultReadTimeout),
		WriteTimeout:        getDurationOrDefault(common.EnvWriteTimeout, common.DefaultWriteTimeout),
		ShutdownTimeout:     getDurationOrDefault(common.EnvShutdownTimeout, common.DefaultShutdownTimeout),
		LogLevel:            getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel),
		LogFormat:           getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat),
		StrictSinglePredict: getBoolOrDefault(common.EnvStrictSinglePredict, false),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func stringOr(v, def string) string {
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

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
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
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func getInt64FromEnvOrConfig(key string, configValue, defaultValue int64) int64 {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getInt64OrDefault(key, defaultValue)
}

func getDurationFromEnvOrConfig(key, configValue string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(configValue); err == nil {
		defaultValue = d
	}
	return getDurationOrDefault(key, defaultValue)
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	return getBoolOrDefault(key, configValue)
}

var (
	validLogLevels  = []string{"trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled"}
	validLogFormats = []string{"console", "json"}
)

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

// validateSettings performs range checks on every configuration value
func validateSettings(settings *Settings) error {
	if settings.HTTPPort < 1 || settings.HTTPPort > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535, got %d", settings.HTTPPort)
	}
	if settings.MetricsPort != 0 && (settings.MetricsPort < 1024 || settings.MetricsPort > 65535) {
		return fmt.Errorf("metrics port must be 0 or between 1024 and 65535, got %d", settings.MetricsPort)
	}
	if settings.MetricsPort == settings.HTTPPort {
		return fmt.Errorf("metrics port must differ from HTTP port %d", settings.HTTPPort)
	}

	if settings.ModelDir == "" {
		return fmt.Errorf("model directory cannot be empty")
	}

	if settings.ChunkSize < 1 || settings.ChunkSize > 1_000_000 {
		return fmt.Errorf("chunk size must be between 1 and 1000000, got %d", settings.ChunkSize)
	}
	if settings.MaxUploadBytes < 1024 {
		return fmt.Errorf("max upload size must be at least 1024 bytes, got %d", settings.MaxUploadBytes)
	}

	if settings.ReadTimeout < time.Second || settings.ReadTimeout > time.Hour {
		return fmt.Errorf("read timeout must be between 1s and 1h, got %v", settings.ReadTimeout)
	}
	if settings.WriteTimeout < time.Second || settings.WriteTimeout > time.Hour {
		return fmt.Errorf("write timeout must be between 1s and 1h, got %v", settings.WriteTimeout)
	}
	if settings.ShutdownTimeout < time.Second || settings.ShutdownTimeout > 5*time.Minute {
		return fmt.Errorf("shutdown timeout must be between 1s and 5m, got %v", settings.ShutdownTimeout)
	}

	if !oneOf(settings.LogLevel, validLogLevels) {
		return fmt.Errorf("log level must be one of %s, got %q", strings.Join(validLogLevels, ", "), settings.LogLevel)
	}
	if !oneOf(settings.LogFormat, validLogFormats) {
		return fmt.Errorf("log format must be one of %s, got %q", strings.Join(validLogFormats, ", "), settings.LogFormat)
	}

	return nil
}
