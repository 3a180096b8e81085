// Package config loads orchestrator configuration from a yaml file and
// RESEARCHD_* environment overrides, and watches the file for hot-reload of
// the runtime tunables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// LoggingConfig selects the zap preset and level.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config carries every recognized option with its default.
type Config struct {
	// Orchestration tunables. MaxConcurrent and MaxRetries are hot-reloadable.
	MaxConcurrent    int `mapstructure:"max_concurrent"`
	MaxRetries       int `mapstructure:"max_retries"`
	PerJobTimeoutMs  int `mapstructure:"per_job_timeout_ms"`
	MaxSourcesPerJob int `mapstructure:"max_sources_per_job"`
	RetryBackoffMs   int `mapstructure:"retry_backoff_ms"`

	// Event stream.
	EventRingCapacity int `mapstructure:"event_ring_capacity"`

	// Collaborator endpoints and rate limits.
	SearchURL    string `mapstructure:"search_url"`
	SynthesisURL string `mapstructure:"synthesis_url"`
	SearchRPM    int    `mapstructure:"search_rpm"`
	SynthesisRPM int    `mapstructure:"synthesis_rpm"`

	// Infrastructure.
	AdminPort int    `mapstructure:"admin_port"`
	RedisAddr string `mapstructure:"redis_addr"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// Load reads the config file at path (optional; defaults apply without one)
// and merges RESEARCHD_* environment overrides on top.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("RESEARCHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_concurrent", 3)
	v.SetDefault("max_retries", 3)
	v.SetDefault("per_job_timeout_ms", 300000)
	v.SetDefault("max_sources_per_job", 5)
	v.SetDefault("retry_backoff_ms", 500)
	v.SetDefault("event_ring_capacity", 256)
	v.SetDefault("search_rpm", 0)
	v.SetDefault("synthesis_rpm", 0)
	v.SetDefault("admin_port", 8081)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate rejects configurations the orchestrator cannot run with.
func (c *Config) Validate() error {
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be positive, got %d", c.MaxConcurrent)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.PerJobTimeoutMs <= 0 {
		return fmt.Errorf("per_job_timeout_ms must be positive, got %d", c.PerJobTimeoutMs)
	}
	if c.MaxSourcesPerJob <= 0 {
		return fmt.Errorf("max_sources_per_job must be positive, got %d", c.MaxSourcesPerJob)
	}
	return nil
}

// PerJobTimeout returns the hard pipeline deadline as a duration.
func (c *Config) PerJobTimeout() time.Duration {
	return time.Duration(c.PerJobTimeoutMs) * time.Millisecond
}

// RetryBackoff returns the base backoff as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}
