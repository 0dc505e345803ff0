package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the court archive scraper
type Config struct {
	// Remote archive API settings
	API APIConfig `yaml:"api" json:"api"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Cache settings
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Download settings
	Download DownloadConfig `yaml:"download" json:"download"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds settings for the remote archive API
type APIConfig struct {
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	UserAgent   string        `yaml:"user_agent" json:"user_agent"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
	MaxAttempts int           `yaml:"max_attempts" json:"max_attempts"`
}

// RateLimitConfig holds adaptive rate limiting configuration
type RateLimitConfig struct {
	InitialDelay   time.Duration `yaml:"initial_delay" json:"initial_delay"`
	MinDelay       time.Duration `yaml:"min_delay" json:"min_delay"`
	MaxDelay       time.Duration `yaml:"max_delay" json:"max_delay"`
	BackoffFactor  float64       `yaml:"backoff_factor" json:"backoff_factor"`
	RecoveryFactor float64       `yaml:"recovery_factor" json:"recovery_factor"`
	Jitter         float64       `yaml:"jitter" json:"jitter"`
}

// CacheConfig holds local cache configuration
type CacheConfig struct {
	Directory string `yaml:"directory" json:"directory"`
}

// DownloadConfig holds download orchestration configuration
type DownloadConfig struct {
	Workers         int           `yaml:"workers" json:"workers"`
	SkipAudio       bool          `yaml:"skip_audio" json:"skip_audio"`
	RetryLimit      int           `yaml:"retry_limit" json:"retry_limit"`
	RetryRounds     int           `yaml:"retry_rounds" json:"retry_rounds"`
	RetryRoundDelay time.Duration `yaml:"retry_round_delay" json:"retry_round_delay"`
	StatusInterval  time.Duration `yaml:"status_interval" json:"status_interval"`
	DownloadTimeout time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "https://api.oyez.org",
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			Timeout:     30 * time.Second,
			MaxAttempts: 5,
		},
		RateLimit: RateLimitConfig{
			InitialDelay:   1 * time.Second,
			MinDelay:       500 * time.Millisecond,
			MaxDelay:       60 * time.Second,
			BackoffFactor:  2.0,
			RecoveryFactor: 0.95,
			Jitter:         0.25,
		},
		Cache: CacheConfig{
			Directory: ".output",
		},
		Download: DownloadConfig{
			Workers:         4,
			SkipAudio:       false,
			RetryLimit:      3,
			RetryRounds:     3,
			RetryRoundDelay: 60 * time.Second,
			StatusInterval:  30 * time.Second,
			DownloadTimeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if baseURL := os.Getenv("COURTSCRAPER_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if userAgent := os.Getenv("COURTSCRAPER_USER_AGENT"); userAgent != "" {
		c.API.UserAgent = userAgent
	}
	if cacheDir := os.Getenv("COURTSCRAPER_CACHE_DIR"); cacheDir != "" {
		c.Cache.Directory = cacheDir
	}
	if workers := os.Getenv("COURTSCRAPER_WORKERS"); workers != "" {
		if val, err := strconv.Atoi(workers); err == nil && val > 0 {
			c.Download.Workers = val
		}
	}
	if retryLimit := os.Getenv("COURTSCRAPER_RETRY_LIMIT"); retryLimit != "" {
		if val, err := strconv.Atoi(retryLimit); err == nil && val >= 0 {
			c.Download.RetryLimit = val
		}
	}
	if skipAudio := os.Getenv("COURTSCRAPER_SKIP_AUDIO"); skipAudio != "" {
		c.Download.SkipAudio = strings.ToLower(skipAudio) == "true"
	}
	if logLevel := os.Getenv("COURTSCRAPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".courtscraper.yaml",
		".courtscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "courtscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "courtscraper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".courtscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("API timeout must be positive"))
	}
	if c.API.MaxAttempts <= 0 {
		errs = append(errs, errors.New("API max attempts must be positive"))
	}

	if c.RateLimit.MinDelay <= 0 {
		errs = append(errs, errors.New("rate limit min delay must be positive"))
	}
	if c.RateLimit.MaxDelay < c.RateLimit.MinDelay {
		errs = append(errs, errors.New("rate limit max delay must be >= min delay"))
	}
	if c.RateLimit.BackoffFactor <= 1.0 {
		errs = append(errs, errors.New("rate limit backoff factor must be > 1.0"))
	}
	if c.RateLimit.RecoveryFactor <= 0 || c.RateLimit.RecoveryFactor >= 1.0 {
		errs = append(errs, errors.New("rate limit recovery factor must be in (0, 1)"))
	}

	if c.Cache.Directory == "" {
		errs = append(errs, errors.New("cache directory is required"))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Download.Workers > 32 {
		errs = append(errs, errors.New("workers should not exceed 32"))
	}
	if c.Download.RetryLimit < 0 {
		errs = append(errs, errors.New("retry limit cannot be negative"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if cacheDir, ok := flags["cache-dir"].(string); ok && cacheDir != "" {
		c.Cache.Directory = cacheDir
	}
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Download.Workers = workers
	}
	if retryLimit, ok := flags["retry-limit"].(int); ok && retryLimit >= 0 {
		c.Download.RetryLimit = retryLimit
	}
	if skipAudio, ok := flags["skip-audio"].(bool); ok {
		c.Download.SkipAudio = skipAudio
	}
	if statusInterval, ok := flags["status-interval"].(time.Duration); ok && statusInterval > 0 {
		c.Download.StatusInterval = statusInterval
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".courtscraper.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
