package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/waste-analyzer/pkg/detection"
)

// Config holds the application configuration
type Config struct {
	Model    ModelConfig      `yaml:"model"`
	Analysis detection.Config `yaml:"analysis"`
	Server   ServerConfig     `yaml:"server"`
	Storage  StorageConfig    `yaml:"storage"`
	History  HistoryConfig    `yaml:"history"`
	Log      LogConfig        `yaml:"log"`
}

// ModelConfig selects the vision backend
type ModelConfig struct {
	// Backend is one of gemini, ollama, openai or llamacpp.
	Backend string `yaml:"backend"`
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// ServerConfig holds configuration for the HTTP API
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxUploadMB    int           `yaml:"max_upload_mb"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// AllowPrivateFetch lets clients submit image URLs on loopback, private
	// or link-local addresses.
	AllowPrivateFetch bool `yaml:"allow_private_fetch"`
}

// StorageConfig holds the object store used for uploaded captures
type StorageConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key,omitempty"`
	SecretKey string        `yaml:"secret_key,omitempty"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region,omitempty"`
	UseSSL    bool          `yaml:"use_ssl"`
	URLExpiry time.Duration `yaml:"url_expiry"`
}

// HistoryConfig holds the scan database
type HistoryConfig struct {
	// Driver is sqlite, mysql or postgres.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig holds logging options
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Backend: "gemini",
			Name:    "gemini-2.5-flash",
		},
		Analysis: detection.DefaultConfig(),
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			MaxUploadMB:    20,
			RequestTimeout: 2 * time.Minute,
		},
		Storage: StorageConfig{
			Enabled:   false,
			Endpoint:  "localhost:9000",
			Bucket:    "waste-images",
			URLExpiry: 7 * 24 * time.Hour,
		},
		History: HistoryConfig{
			Driver: "sqlite",
			DSN:    "waste-analyzer.db",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys missing from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// may contain API keys
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("WASTE_BACKEND"); v != "" {
		c.Model.Backend = v
	}
	if v := os.Getenv("WASTE_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("WASTE_MODEL_URL"); v != "" {
		c.Model.BaseURL = v
	}
	if c.Model.APIKey == "" {
		switch strings.ToLower(c.Model.Backend) {
		case "gemini":
			c.Model.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
		case "openai":
			c.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if v := os.Getenv("WASTE_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("WASTE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("WASTE_DB_DRIVER"); v != "" {
		c.History.Driver = v
	}
	if v := os.Getenv("WASTE_DB_DSN"); v != "" {
		c.History.DSN = v
	}
	if v := os.Getenv("WASTE_ANALYSIS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Analysis.Timeout = d
		}
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		c.Storage.Endpoint = v
		c.Storage.Enabled = true
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		c.Storage.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		c.Storage.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		c.Storage.Bucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Storage.UseSSL = b
		}
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.Model.Backend) {
	case "gemini", "openai":
		if c.Model.APIKey == "" && c.Model.BaseURL == "" {
			return fmt.Errorf("model.api_key is required for the %s backend", c.Model.Backend)
		}
	case "ollama", "llamacpp":
	default:
		return fmt.Errorf("model.backend must be one of gemini, ollama, openai, llamacpp (got %q)", c.Model.Backend)
	}

	if c.Analysis.Timeout < 0 {
		return fmt.Errorf("analysis.timeout must not be negative")
	}

	if c.Analysis.MaxDimension < 0 {
		return fmt.Errorf("analysis.max_dimension must not be negative")
	}

	if c.Analysis.UploadQuality < 1 || c.Analysis.UploadQuality > 100 {
		return fmt.Errorf("analysis.upload_quality must be between 1 and 100")
	}

	if c.Analysis.Crop.Quality < 1 || c.Analysis.Crop.Quality > 100 {
		return fmt.Errorf("analysis.crop.quality must be between 1 and 100")
	}

	if c.Analysis.Crop.Padding < 0 || c.Analysis.Crop.Padding > 50 {
		return fmt.Errorf("analysis.crop.padding must be between 0 and 50")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	if c.Storage.Enabled && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket cannot be empty")
	}

	switch c.History.Driver {
	case "", "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("history.driver must be sqlite, mysql or postgres (got %q)", c.History.Driver)
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".config", "waste-analyzer", "config.yaml")
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
