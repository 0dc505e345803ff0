package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "https://api.oyez.org", cfg.API.BaseURL)
	assert.Equal(t, 5, cfg.API.MaxAttempts)
	assert.Equal(t, time.Second, cfg.RateLimit.InitialDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.RateLimit.MinDelay)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.MaxDelay)
	assert.Equal(t, 4, cfg.Download.Workers)
	assert.Equal(t, 3, cfg.Download.RetryRounds)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
api:
  base_url: "https://archive.example.org"
  max_attempts: 7
cache:
  directory: "/tmp/court-cache"
download:
  workers: 8
  skip_audio: true
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "https://archive.example.org", cfg.API.BaseURL)
	assert.Equal(t, 7, cfg.API.MaxAttempts)
	assert.Equal(t, "/tmp/court-cache", cfg.Cache.Directory)
	assert.Equal(t, 8, cfg.Download.Workers)
	assert.True(t, cfg.Download.SkipAudio)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched values keep their defaults
	assert.Equal(t, time.Second, cfg.RateLimit.InitialDelay)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COURTSCRAPER_CACHE_DIR", "/var/court")
	t.Setenv("COURTSCRAPER_WORKERS", "12")
	t.Setenv("COURTSCRAPER_SKIP_AUDIO", "true")
	t.Setenv("COURTSCRAPER_LOG_LEVEL", "warn")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "/var/court", cfg.Cache.Directory)
	assert.Equal(t, 12, cfg.Download.Workers)
	assert.True(t, cfg.Download.SkipAudio)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadFromEnvIgnoresInvalid(t *testing.T) {
	t.Setenv("COURTSCRAPER_WORKERS", "not-a-number")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())
	assert.Equal(t, 4, cfg.Download.Workers)
}

func TestMergeCommandLineFlags(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeCommandLineFlags(map[string]interface{}{
		"cache-dir":   "/flags/cache",
		"workers":     2,
		"skip-audio":  true,
		"retry-limit": 5,
		"log-level":   "error",
	})

	assert.Equal(t, "/flags/cache", cfg.Cache.Directory)
	assert.Equal(t, 2, cfg.Download.Workers)
	assert.True(t, cfg.Download.SkipAudio)
	assert.Equal(t, 5, cfg.Download.RetryLimit)
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty base URL", func(c *Config) { c.API.BaseURL = "" }},
		{"zero timeout", func(c *Config) { c.API.Timeout = 0 }},
		{"zero max attempts", func(c *Config) { c.API.MaxAttempts = 0 }},
		{"zero min delay", func(c *Config) { c.RateLimit.MinDelay = 0 }},
		{"max below min delay", func(c *Config) { c.RateLimit.MaxDelay = c.RateLimit.MinDelay - 1 }},
		{"backoff factor too small", func(c *Config) { c.RateLimit.BackoffFactor = 1.0 }},
		{"recovery factor too large", func(c *Config) { c.RateLimit.RecoveryFactor = 1.0 }},
		{"empty cache dir", func(c *Config) { c.Cache.Directory = "" }},
		{"zero workers", func(c *Config) { c.Download.Workers = 0 }},
		{"too many workers", func(c *Config) { c.Download.Workers = 64 }},
		{"negative retry limit", func(c *Config) { c.Download.RetryLimit = -1 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "config.yaml")

	cfg := DefaultConfig()
	cfg.Cache.Directory = "/saved/cache"
	cfg.Download.Workers = 6
	require.NoError(t, cfg.Save(path))

	loaded := DefaultConfig()
	require.NoError(t, loaded.LoadFromFile(path))
	assert.Equal(t, "/saved/cache", loaded.Cache.Directory)
	assert.Equal(t, 6, loaded.Download.Workers)
}
