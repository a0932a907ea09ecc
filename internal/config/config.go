// Package config provides configuration management for the composite service.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/robert-malhotra/orbit-composite/internal/composite"
)

// Config holds the complete application configuration loaded from environment variables.
type Config struct {
	Server     ServerConfig     `envPrefix:"SERVER_"`
	Processing ProcessingConfig `envPrefix:"PROCESSING_"`
	Storage    StorageConfig    `envPrefix:"STORAGE_"`
	Jobs       JobsConfig       `envPrefix:"JOBS_"`
	Logging    LoggingConfig    `envPrefix:"LOG_"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            int           `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	// MaxBodyBytes bounds tile request bodies.
	MaxBodyBytes int64 `env:"MAX_BODY_BYTES" envDefault:"67108864"`
}

// ProcessingConfig tunes the composite scripts and the tile engine.
type ProcessingConfig struct {
	// MonthKey is "calendar-month" (year ignored) or "year-month".
	MonthKey string `env:"MONTH_KEY" envDefault:"calendar-month"`
	// RatioPolicy is "db-scaled" or "linear".
	RatioPolicy string `env:"RATIO_POLICY" envDefault:"db-scaled"`
	// Workers bounds concurrent pixel evaluations; 0 uses GOMAXPROCS.
	Workers int `env:"WORKERS" envDefault:"0"`
}

// StorageConfig contains tile output storage configuration.
type StorageConfig struct {
	// BucketURL is a gocloud.dev bucket URL: file:///path, mem://, s3://bucket, gs://bucket.
	BucketURL string `env:"BUCKET_URL" envDefault:"mem://"`
	Prefix    string `env:"PREFIX" envDefault:""`
}

// JobsConfig locates batch job definitions.
type JobsConfig struct {
	Dir string `env:"DIR" envDefault:"./jobs"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Load parses configuration from environment variables.
// It returns an error if required fields are missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}

	opts := env.Options{
		RequiredIfNoDef: true,
	}

	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive, got %s", c.Server.ReadTimeout)
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive, got %s", c.Server.WriteTimeout)
	}

	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server shutdown timeout must be positive, got %s", c.Server.ShutdownTimeout)
	}

	if c.Server.MaxBodyBytes < 1 {
		return fmt.Errorf("server max body bytes must be positive, got %d", c.Server.MaxBodyBytes)
	}

	if _, err := composite.ParseMonthKey(c.Processing.MonthKey); err != nil {
		return err
	}

	if _, err := composite.ParseRatioPolicy(c.Processing.RatioPolicy); err != nil {
		return err
	}

	if c.Processing.Workers < 0 {
		return fmt.Errorf("processing workers must not be negative, got %d", c.Processing.Workers)
	}

	if c.Storage.BucketURL == "" {
		return fmt.Errorf("storage bucket URL is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true,
		"text": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, text", c.Logging.Format)
	}

	return nil
}

// ScriptOptions converts the processing settings into script options.
// Validate must have succeeded.
func (c *Config) ScriptOptions() composite.Options {
	monthKey, _ := composite.ParseMonthKey(c.Processing.MonthKey)
	ratio, _ := composite.ParseRatioPolicy(c.Processing.RatioPolicy)
	return composite.Options{MonthKey: monthKey, RatioPolicy: ratio}
}

// Address returns the server listen address in the format "host:port".
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
