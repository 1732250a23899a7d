package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValidWithKey(t *testing.T) {
	cfg := Default()
	cfg.Model.APIKey = "k"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 90*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 1536, cfg.Analysis.MaxDimension)
	assert.Equal(t, 90, cfg.Analysis.Crop.Quality)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Model.Backend = "ollama"
	cfg.Model.Name = "llava:13b"
	cfg.Analysis.Timeout = 45 * time.Second
	cfg.Analysis.Heuristics.ObjectNouns = []string{"straw"}
	require.NoError(t, cfg.SaveToFile(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  backend: openai
  name: gpt-4o-mini
analysis:
  timeout: 30s
  crop:
    padding: 2
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Model.Backend)
	assert.Equal(t, 30*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, 2.0, cfg.Analysis.Crop.Padding)
	assert.Equal(t, 1536, cfg.Analysis.MaxDimension)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Server.AllowPrivateFetch)
	assert.Equal(t, "sqlite", cfg.History.Driver)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0644))
	_, err = LoadFromFile(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WASTE_BACKEND", "openai")
	t.Setenv("WASTE_MODEL", "gpt-4o")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WASTE_LOG_LEVEL", "debug")
	t.Setenv("WASTE_ANALYSIS_TIMEOUT", "15s")
	t.Setenv("WASTE_DB_DRIVER", "postgres")
	t.Setenv("WASTE_DB_DSN", "postgres://localhost/waste")
	t.Setenv("MINIO_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := Default()
	cfg.ApplyEnv()

	assert.Equal(t, "openai", cfg.Model.Backend)
	assert.Equal(t, "gpt-4o", cfg.Model.Name)
	assert.Equal(t, "sk-test", cfg.Model.APIKey)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 15*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, "postgres", cfg.History.Driver)
	assert.Equal(t, "postgres://localhost/waste", cfg.History.DSN)
	assert.True(t, cfg.Storage.Enabled)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, "minio:9000", cfg.Storage.Endpoint)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnvGeminiKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "g-key")

	cfg := Default()
	cfg.ApplyEnv()
	assert.Equal(t, "g-key", cfg.Model.APIKey)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(*Config){
		"unknown backend":  func(c *Config) { c.Model.Backend = "bard" },
		"missing key":      func(c *Config) { c.Model.APIKey = "" },
		"upload quality":   func(c *Config) { c.Analysis.UploadQuality = 0 },
		"crop quality":     func(c *Config) { c.Analysis.Crop.Quality = 101 },
		"crop padding":     func(c *Config) { c.Analysis.Crop.Padding = -1 },
		"negative maxdim":  func(c *Config) { c.Analysis.MaxDimension = -5 },
		"upload limit":     func(c *Config) { c.Server.MaxUploadMB = 0 },
		"empty bucket":     func(c *Config) { c.Storage.Enabled = true; c.Storage.Bucket = "" },
		"history driver":   func(c *Config) { c.History.Driver = "oracle" },
		"negative timeout": func(c *Config) { c.Analysis.Timeout = -time.Second },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			cfg.Model.APIKey = "k"
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	ollama := Default()
	ollama.Model.Backend = "ollama"
	assert.NoError(t, ollama.Validate())
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, "config.yaml", filepath.Base(GetConfigPath()))
}
