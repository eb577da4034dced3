package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate clears every variable Load reads so the host environment cannot leak in.
func isolate(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "HTTP_PORT", "METRICS_PORT", "MODEL_DIR", "DATA_PATH", "CHUNK_SIZE",
		"MAX_UPLOAD_BYTES", "READ_TIMEOUT", "WRITE_TIMEOUT", "SHUTDOWN_TIMEOUT",
		"LOG_LEVEL", "LOG_FORMAT", "STRICT_SINGLE_PREDICT",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
}

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.HTTPPort != 5000 {
					t.Errorf("expected default HTTPPort 5000, got %d", settings.HTTPPort)
				}
				if settings.MetricsPort != 9100 {
					t.Errorf("expected default MetricsPort 9100, got %d", settings.MetricsPort)
				}
				if settings.ModelDir != "models" {
					t.Errorf("expected default ModelDir 'models', got %s", settings.ModelDir)
				}
				if settings.ChunkSize != 5000 {
					t.Errorf("expected default ChunkSize 5000, got %d", settings.ChunkSize)
				}
				if settings.DataPath != "" {
					t.Errorf("expected audit store disabled by default, got %s", settings.DataPath)
				}
				if settings.StrictSinglePredict {
					t.Error("expected StrictSinglePredict to default to false")
				}
			},
		},
		{
			name: "custom settings",
			envVars: map[string]string{
				"HTTP_PORT":             "8080",
				"METRICS_PORT":          "0",
				"MODEL_DIR":             "/srv/models",
				"DATA_PATH":             "/var/lib/sepsis",
				"CHUNK_SIZE":            "250",
				"READ_TIMEOUT":          "30s",
				"LOG_FORMAT":            "json",
				"STRICT_SINGLE_PREDICT": "true",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.HTTPPort != 8080 {
					t.Errorf("expected HTTPPort 8080, got %d", settings.HTTPPort)
				}
				if settings.MetricsPort != 0 {
					t.Errorf("expected metrics disabled, got %d", settings.MetricsPort)
				}
				if settings.ModelDir != "/srv/models" {
					t.Errorf("expected ModelDir /srv/models, got %s", settings.ModelDir)
				}
				if settings.DataPath != "/var/lib/sepsis" {
					t.Errorf("expected DataPath /var/lib/sepsis, got %s", settings.DataPath)
				}
				if settings.ChunkSize != 250 {
					t.Errorf("expected ChunkSize 250, got %d", settings.ChunkSize)
				}
				if settings.ReadTimeout != 30*time.Second {
					t.Errorf("expected ReadTimeout 30s, got %v", settings.ReadTimeout)
				}
				if settings.LogFormat != "json" {
					t.Errorf("expected LogFormat json, got %s", settings.LogFormat)
				}
				if !settings.StrictSinglePredict {
					t.Error("expected StrictSinglePredict to be true")
				}
			},
		},
		{
			name:    "unparseable values fall back to defaults",
			envVars: map[string]string{"CHUNK_SIZE": "lots", "READ_TIMEOUT": "soon"},
			validate: func(t *testing.T, settings Settings) {
				if settings.ChunkSize != 5000 {
					t.Errorf("expected default ChunkSize, got %d", settings.ChunkSize)
				}
				if settings.ReadTimeout != 60*time.Second {
					t.Errorf("expected default ReadTimeout, got %v", settings.ReadTimeout)
				}
			},
		},
		{
			name:    "zero chunk size",
			envVars: map[string]string{"CHUNK_SIZE": "0"},
			wantErr: true,
		},
		{
			name:    "ports collide",
			envVars: map[string]string{"HTTP_PORT": "9100"},
			wantErr: true,
		},
		{
			name:    "unknown log level",
			envVars: map[string]string{"LOG_LEVEL": "verbose"},
			wantErr: true,
		},
		{
			name:    "upload limit too small",
			envVars: map[string]string{"MAX_UPLOAD_BYTES": "10"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadFromYAML(t *testing.T) {
	tests := []struct {
		name       string
		yamlConfig string
		envVars    map[string]string
		wantErr    bool
		validate   func(t *testing.T, settings Settings)
	}{
		{
			name: "full config",
			yamlConfig: `
server:
  httpPort: 7000
  metricsPort: 9200
  readTimeout: 15s
  writeTimeout: 2m
  maxUploadBytes: 1048576
model:
  dir: /opt/sepsis/models
  strictSinglePredict: true
batch:
  chunkSize: 1000
system:
  dataPath: ./data
  logLevel: debug
  logFormat: json
`,
			validate: func(t *testing.T, settings Settings) {
				if settings.HTTPPort != 7000 {
					t.Errorf("expected HTTPPort 7000, got %d", settings.HTTPPort)
				}
				if settings.MetricsPort != 9200 {
					t.Errorf("expected MetricsPort 9200, got %d", settings.MetricsPort)
				}
				if settings.ReadTimeout != 15*time.Second {
					t.Errorf("expected ReadTimeout 15s, got %v", settings.ReadTimeout)
				}
				if settings.WriteTimeout != 2*time.Minute {
					t.Errorf("expected WriteTimeout 2m, got %v", settings.WriteTimeout)
				}
				if settings.MaxUploadBytes != 1048576 {
					t.Errorf("expected MaxUploadBytes 1048576, got %d", settings.MaxUploadBytes)
				}
				if settings.ModelDir != "/opt/sepsis/models" {
					t.Errorf("expected ModelDir /opt/sepsis/models, got %s", settings.ModelDir)
				}
				if !settings.StrictSinglePredict {
					t.Error("expected StrictSinglePredict to be true")
				}
				if settings.ChunkSize != 1000 {
					t.Errorf("expected ChunkSize 1000, got %d", settings.ChunkSize)
				}
				if settings.DataPath != "./data" {
					t.Errorf("expected DataPath ./data, got %s", settings.DataPath)
				}
				if settings.LogLevel != "debug" {
					t.Errorf("expected LogLevel debug, got %s", settings.LogLevel)
				}
			},
		},
		{
			name:       "env overrides yaml",
			yamlConfig: "batch:\n  chunkSize: 1000\nmodel:\n  dir: /opt/models\n",
			envVars:    map[string]string{"CHUNK_SIZE": "42", "MODEL_DIR": "/tmp/models"},
			validate: func(t *testing.T, settings Settings) {
				if settings.ChunkSize != 42 {
					t.Errorf("expected env ChunkSize 42, got %d", settings.ChunkSize)
				}
				if settings.ModelDir != "/tmp/models" {
					t.Errorf("expected env ModelDir, got %s", settings.ModelDir)
				}
			},
		},
		{
			name:       "empty sections use defaults",
			yamlConfig: "server: {}\n",
			validate: func(t *testing.T, settings Settings) {
				if settings.HTTPPort != 5000 || settings.ChunkSize != 5000 {
					t.Errorf("expected defaults, got port %d chunk %d", settings.HTTPPort, settings.ChunkSize)
				}
			},
		},
		{
			name:       "invalid yaml",
			yamlConfig: "server: [unterminated",
			wantErr:    true,
		},
		{
			name:       "invalid value",
			yamlConfig: "server:\n  shutdownTimeout: 1h\n",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			configPath := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.yamlConfig), 0o644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			t.Setenv("CONFIG_FILE", configPath)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			settings, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	isolate(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolate(t)
	// t.Setenv registers cleanup; Unsetenv lets godotenv populate the keys.
	os.Unsetenv("MODEL_DIR")
	os.Unsetenv("CHUNK_SIZE")

	envPath := filepath.Join(t.TempDir(), "service.env")
	if err := os.WriteFile(envPath, []byte("MODEL_DIR=/from/dotenv\nCHUNK_SIZE=77\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Setenv("ENV_FILE", envPath)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if settings.ModelDir != "/from/dotenv" {
		t.Errorf("expected ModelDir from env file, got %s", settings.ModelDir)
	}
	if settings.ChunkSize != 77 {
		t.Errorf("expected ChunkSize 77 from env file, got %d", settings.ChunkSize)
	}
}

func TestValidateSettings(t *testing.T) {
	valid := func() Settings {
		return Settings{
			HTTPPort:        5000,
			MetricsPort:     9100,
			ModelDir:        "models",
			ChunkSize:       5000,
			MaxUploadBytes:  1 << 20,
			ReadTimeout:     time.Minute,
			WriteTimeout:    time.Minute,
			ShutdownTimeout: 10 * time.Second,
			LogLevel:        "INFO",
			LogFormat:       "console",
		}
	}

	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"metrics disabled", func(s *Settings) { s.MetricsPort = 0 }, ""},
		{"http port out of range", func(s *Settings) { s.HTTPPort = 70000 }, "HTTP port"},
		{"privileged metrics port", func(s *Settings) { s.MetricsPort = 80 }, "metrics port"},
		{"empty model dir", func(s *Settings) { s.ModelDir = "" }, "model directory"},
		{"huge chunk", func(s *Settings) { s.ChunkSize = 2_000_000 }, "chunk size"},
		{"short read timeout", func(s *Settings) { s.ReadTimeout = time.Millisecond }, "read timeout"},
		{"long write timeout", func(s *Settings) { s.WriteTimeout = 2 * time.Hour }, "write timeout"},
		{"zero shutdown timeout", func(s *Settings) { s.ShutdownTimeout = 0 }, "shutdown timeout"},
		{"bad log format", func(s *Settings) { s.LogFormat = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(&s)
			err := validateSettings(&s)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
