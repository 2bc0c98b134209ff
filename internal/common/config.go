// Package common provides shared utilities for docparse.
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the docparse job-dispatch server.
type Config struct {
	Environment string        `toml:"environment"`
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Engine      EngineConfig  `toml:"engine"`
	Upload      UploadConfig  `toml:"upload"`
	Gemini      GeminiConfig  `toml:"gemini"`
	Logging     LoggingConfig `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StorageConfig holds the job state store's connection settings — a
// SurrealDB address rather than a filesystem path, since the store is a
// separate server process (§4.A's Open Question choice (a)).
type StorageConfig struct {
	Address   string `toml:"address"`   // e.g. ws://127.0.0.1:8000/rpc
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
}

// EngineConfig holds the GPU admission and worker-pool tuning knobs (§4.B, §4.D).
type EngineConfig struct {
	Deployed              []string `toml:"deployed"`                // which engines this process runs: "ocr", "form_parse"
	MaxWorkersOCR         int      `toml:"max_workers_ocr"`
	MaxWorkersForm        int      `toml:"max_workers_form"`
	GPUMaxConcurrent      int      `toml:"gpu_max_concurrent"`
	GPUMemoryThresholdGiB float64  `toml:"gpu_memory_threshold_gib"`
	GPUAcquireTimeoutS    int      `toml:"gpu_acquire_timeout_s"`
	DefaultFormPrompt     string   `toml:"default_form_prompt"`
}

// GetAcquireTimeout returns the GPU acquisition timeout as a time.Duration.
func (c *EngineConfig) GetAcquireTimeout() time.Duration {
	if c.GPUAcquireTimeoutS <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.GPUAcquireTimeoutS) * time.Second
}

// RunsOCR reports whether this deployment runs the OCR engine.
func (c *EngineConfig) RunsOCR() bool {
	return contains(c.Deployed, "ocr")
}

// RunsFormParse reports whether this deployment runs the form-parse engine.
func (c *EngineConfig) RunsFormParse() bool {
	return contains(c.Deployed, "form_parse")
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// UploadConfig holds validation limits for incoming image/document uploads (§7.1).
type UploadConfig struct {
	AllowedExtensions []string `toml:"allowed_extensions"`
	AllowedMimeTypes  []string `toml:"allowed_mime_types"`
	MaxFileSizeBytes  int64    `toml:"max_file_size_bytes"`
}

// GeminiConfig holds the vision-language model client configuration.
type GeminiConfig struct {
	APIKey string `toml:"api_key"`
	Model  string `toml:"model"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Address:   "ws://127.0.0.1:8000/rpc",
			Username:  "root",
			Password:  "root",
			Namespace: "docparse",
			Database:  "docparse",
		},
		Engine: EngineConfig{
			Deployed:              []string{"ocr", "form_parse"},
			MaxWorkersOCR:         2,
			MaxWorkersForm:        2,
			GPUMaxConcurrent:      1,
			GPUMemoryThresholdGiB: 1.0,
			GPUAcquireTimeoutS:    300,
			DefaultFormPrompt:     "Extract all visible fields from this document as a single JSON object.",
		},
		Upload: UploadConfig{
			AllowedExtensions: []string{".png", ".jpg", ".jpeg", ".bmp", ".tiff", ".tif", ".webp", ".pdf"},
			AllowedMimeTypes:  []string{"image/png", "image/jpeg", "image/bmp", "image/tiff", "image/webp", "application/pdf"},
			MaxFileSizeBytes:  20 * 1024 * 1024,
		},
		Gemini: GeminiConfig{
			Model: "gemini-3-flash-preview",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Outputs:    []string{"console"},
			FilePath:   "./logs/docparse.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides, later
// files in paths overriding earlier ones.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies DOCPARSE_*-prefixed environment variable overrides.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("DOCPARSE_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("DOCPARSE_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("DOCPARSE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("DOCPARSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if v := os.Getenv("DOCPARSE_STATE_STORE_URL"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("DOCPARSE_STATE_STORE_USER"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("DOCPARSE_STATE_STORE_PASS"); v != "" {
		config.Storage.Password = v
	}
	if v := os.Getenv("DOCPARSE_STATE_STORE_NAMESPACE"); v != "" {
		config.Storage.Namespace = v
	}
	if v := os.Getenv("DOCPARSE_STATE_STORE_DATABASE"); v != "" {
		config.Storage.Database = v
	}

	if v := os.Getenv("DOCPARSE_DEPLOYED_ENGINE"); v != "" {
		config.Engine.Deployed = strings.Split(v, ",")
	}
	if v := os.Getenv("DOCPARSE_MAX_WORKERS_OCR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.MaxWorkersOCR = n
		}
	}
	if v := os.Getenv("DOCPARSE_MAX_WORKERS_FORM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.MaxWorkersForm = n
		}
	}
	if v := os.Getenv("DOCPARSE_GPU_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.GPUMaxConcurrent = n
		}
	}
	if v := os.Getenv("DOCPARSE_GPU_MEMORY_THRESHOLD_GIB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Engine.GPUMemoryThresholdGiB = f
		}
	}
	if v := os.Getenv("DOCPARSE_GPU_ACQUIRE_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Engine.GPUAcquireTimeoutS = n
		}
	}
	if v := os.Getenv("DOCPARSE_DEFAULT_FORM_PROMPT"); v != "" {
		config.Engine.DefaultFormPrompt = v
	}

	if v := os.Getenv("DOCPARSE_MAX_FILE_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			config.Upload.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("DOCPARSE_ALLOWED_EXTENSIONS"); v != "" {
		config.Upload.AllowedExtensions = strings.Split(v, ",")
	}
	if v := os.Getenv("DOCPARSE_ALLOWED_MIME_TYPES"); v != "" {
		config.Upload.AllowedMimeTypes = strings.Split(v, ",")
	}

	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("DOCPARSE_GEMINI_API_KEY"); v != "" {
		config.Gemini.APIKey = v
	}
	if v := os.Getenv("DOCPARSE_GEMINI_MODEL"); v != "" {
		config.Gemini.Model = v
	}
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
