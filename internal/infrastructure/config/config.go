// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	maxItems := cfg.Matching.MaxItems
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/eshaffer321/splitmatch/internal/domain/matcher"
)

// Config represents the entire application configuration
type Config struct {
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Matching      MatchingConfig      `yaml:"matching"`
	Confirmation  ConfirmationConfig  `yaml:"confirmation"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// MatchingConfig tunes suggestion generation
type MatchingConfig struct {
	DefaultToleranceCents int64 `yaml:"default_tolerance_cents"`
	MaxItems              int   `yaml:"max_items"`
	TopK                  int   `yaml:"top_k"`
	CandidatePoolSize     int   `yaml:"candidate_pool_size"`
	LookbackDays          int   `yaml:"lookback_days"`
	LookaheadDays         int   `yaml:"lookahead_days"`
}

// ConfirmationConfig holds confirmation settings
type ConfirmationConfig struct {
	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig controls how transient storage conflicts are retried
type RetryConfig struct {
	MaxRetries      uint64        `yaml:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles the /metrics endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the built-in configuration. Values read from a file are
// layered on top of it.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{DatabasePath: "splitmatch.db"},
		Server: ServerConfig{
			Port:           8085,
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Matching: MatchingConfig{
			DefaultToleranceCents: 0,
			MaxItems:              10,
			TopK:                  5,
			CandidatePoolSize:     50,
			LookbackDays:          30,
			LookaheadDays:         7,
		},
		Confirmation: ConfirmationConfig{
			Retry: RetryConfig{
				MaxRetries:      3,
				InitialInterval: 50 * time.Millisecond,
				MaxInterval:     500 * time.Millisecond,
				Multiplier:      2,
			},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{Level: "info", Format: "text"},
			Metrics: MetricsConfig{Enabled: true},
		},
	}
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${SPLITMATCH_DB_PATH})
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	d := Default()
	return &Config{
		Storage: StorageConfig{
			DatabasePath: getEnv("SPLITMATCH_DB_PATH", d.Storage.DatabasePath),
		},
		Server: ServerConfig{
			Port:           getEnvInt("SPLITMATCH_PORT", d.Server.Port),
			AllowedOrigins: getEnvList("SPLITMATCH_ALLOWED_ORIGINS", d.Server.AllowedOrigins),
		},
		Matching: MatchingConfig{
			DefaultToleranceCents: int64(getEnvInt("SPLITMATCH_TOLERANCE_CENTS", int(d.Matching.DefaultToleranceCents))),
			MaxItems:              getEnvInt("SPLITMATCH_MAX_ITEMS", d.Matching.MaxItems),
			TopK:                  getEnvInt("SPLITMATCH_TOP_K", d.Matching.TopK),
			CandidatePoolSize:     getEnvInt("SPLITMATCH_CANDIDATE_POOL_SIZE", d.Matching.CandidatePoolSize),
			LookbackDays:          getEnvInt("SPLITMATCH_LOOKBACK_DAYS", d.Matching.LookbackDays),
			LookaheadDays:         getEnvInt("SPLITMATCH_LOOKAHEAD_DAYS", d.Matching.LookaheadDays),
		},
		Confirmation: ConfirmationConfig{
			Retry: RetryConfig{
				MaxRetries:      uint64(getEnvInt("SPLITMATCH_CONFIRM_MAX_RETRIES", int(d.Confirmation.Retry.MaxRetries))),
				InitialInterval: getEnvDuration("SPLITMATCH_CONFIRM_INITIAL_INTERVAL", d.Confirmation.Retry.InitialInterval),
				MaxInterval:     getEnvDuration("SPLITMATCH_CONFIRM_MAX_INTERVAL", d.Confirmation.Retry.MaxInterval),
				Multiplier:      d.Confirmation.Retry.Multiplier,
			},
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", d.Observability.Logging.Level),
				Format: getEnv("LOG_FORMAT", d.Observability.Logging.Format),
			},
			Metrics: MetricsConfig{
				Enabled: getEnv("SPLITMATCH_METRICS_ENABLED", "true") != "false",
			},
		},
	}
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// Validate rejects settings the matcher or coordinator cannot run with
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Storage.DatabasePath) == "" {
		errs = append(errs, errors.New("storage.database_path is required"))
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	m := c.Matching
	if m.DefaultToleranceCents < 0 {
		errs = append(errs, errors.New("matching.default_tolerance_cents must not be negative"))
	}
	if m.MaxItems < 1 || m.MaxItems > matcher.MaxSupportedItems {
		errs = append(errs, fmt.Errorf("matching.max_items must be between 1 and %d", matcher.MaxSupportedItems))
	}
	if m.TopK < 0 {
		errs = append(errs, errors.New("matching.top_k must not be negative"))
	}
	if m.CandidatePoolSize < m.MaxItems {
		errs = append(errs, errors.New("matching.candidate_pool_size must be at least max_items"))
	}
	if m.LookbackDays < 0 || m.LookaheadDays < 0 {
		errs = append(errs, errors.New("matching lookback/lookahead days must not be negative"))
	}

	r := c.Confirmation.Retry
	if r.InitialInterval <= 0 || r.MaxInterval < r.InitialInterval {
		errs = append(errs, errors.New("confirmation.retry intervals must be positive and max_interval >= initial_interval"))
	}
	if r.Multiplier < 1 {
		errs = append(errs, errors.New("confirmation.retry.multiplier must be at least 1"))
	}

	switch c.Observability.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.logging.format %q must be text or json", c.Observability.Logging.Format))
	}

	return errors.Join(errs...)
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvList splits a comma separated variable
func getEnvList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
