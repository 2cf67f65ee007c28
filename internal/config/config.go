// Package config loads worker configuration from defaults, an optional
// YAML file, WORKER_* environment variables and bound command-line flags.
//
// Nested keys map to environment variables by replacing dots with
// underscores: delivery.max_attempts is WORKER_DELIVERY_MAX_ATTEMPTS.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "WORKER"

// Config is the resolved worker configuration.
type Config struct {
	Database string
	Listen   string

	Compiler  CompilerConfig
	Delegator DelegatorConfig
	Worker    WorkerConfig
	Delivery  DeliveryConfig

	TimeoutCheckPeriod      time.Duration
	JobCompletedCheckPeriod time.Duration

	API     APIConfig
	Metrics MetricsConfig
}

// CompilerConfig locates the compiler and its directories.
type CompilerConfig struct {
	Binary    string
	SourceDir string
	TargetDir string
}

// DelegatorConfig locates the test delegator.
type DelegatorConfig struct {
	Binary string
}

// WorkerConfig sizes the message bus.
type WorkerConfig struct {
	Concurrency int
}

// DeliveryConfig bounds WorkerEvent delivery.
type DeliveryConfig struct {
	MaxAttempts     int
	RetryDelay      time.Duration
	RetryMultiplier float64
	Timeout         time.Duration
}

// APIConfig limits the inbound API.
type APIConfig struct {
	RateLimit float64
	RateBurst int
}

// MetricsConfig toggles the /metrics route.
type MetricsConfig struct {
	Enabled bool
}

// defaults lists every key with its default value.
var defaults = map[string]any{
	"database":                   "worker.db",
	"listen":                     ":8080",
	"compiler.binary":            "compiler",
	"compiler.source_dir":        "/app/source",
	"compiler.target_dir":        "/app/tests",
	"delegator.binary":           "delegator",
	"worker.concurrency":         1,
	"delivery.max_attempts":      3,
	"delivery.retry_delay":       time.Second,
	"delivery.retry_multiplier":  2.0,
	"delivery.timeout":           10 * time.Second,
	"timeout_check.period":       30 * time.Second,
	"job_completed_check.period": time.Second,
	"api.rate_limit":             20.0,
	"api.rate_burst":             40,
	"metrics.enabled":            true,
}

// New returns a viper instance with defaults and environment binding set
// up. Callers may bind flags and set a config file before Load.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file, if one is set, and resolves and validates
// the configuration.
func Load(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := &Config{
		Database: v.GetString("database"),
		Listen:   v.GetString("listen"),
		Compiler: CompilerConfig{
			Binary:    v.GetString("compiler.binary"),
			SourceDir: v.GetString("compiler.source_dir"),
			TargetDir: v.GetString("compiler.target_dir"),
		},
		Delegator: DelegatorConfig{
			Binary: v.GetString("delegator.binary"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
		},
		Delivery: DeliveryConfig{
			MaxAttempts:     v.GetInt("delivery.max_attempts"),
			RetryDelay:      v.GetDuration("delivery.retry_delay"),
			RetryMultiplier: v.GetFloat64("delivery.retry_multiplier"),
			Timeout:         v.GetDuration("delivery.timeout"),
		},
		TimeoutCheckPeriod:      v.GetDuration("timeout_check.period"),
		JobCompletedCheckPeriod: v.GetDuration("job_completed_check.period"),
		API: APIConfig{
			RateLimit: v.GetFloat64("api.rate_limit"),
			RateBurst: v.GetInt("api.rate_burst"),
		},
		Metrics: MetricsConfig{
			Enabled: v.GetBool("metrics.enabled"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	nonEmpty := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s must not be empty", key))
		}
	}
	positive := func(key string, ok bool) {
		if !ok {
			errs = append(errs, fmt.Errorf("%s must be positive", key))
		}
	}

	nonEmpty("database", c.Database)
	nonEmpty("listen", c.Listen)
	nonEmpty("compiler.binary", c.Compiler.Binary)
	nonEmpty("compiler.source_dir", c.Compiler.SourceDir)
	nonEmpty("compiler.target_dir", c.Compiler.TargetDir)
	nonEmpty("delegator.binary", c.Delegator.Binary)

	positive("worker.concurrency", c.Worker.Concurrency > 0)
	positive("delivery.max_attempts", c.Delivery.MaxAttempts > 0)
	positive("delivery.retry_delay", c.Delivery.RetryDelay > 0)
	positive("delivery.timeout", c.Delivery.Timeout > 0)
	positive("timeout_check.period", c.TimeoutCheckPeriod > 0)
	positive("job_completed_check.period", c.JobCompletedCheckPeriod > 0)
	positive("api.rate_limit", c.API.RateLimit > 0)
	positive("api.rate_burst", c.API.RateBurst > 0)
	if c.Delivery.RetryMultiplier < 1 {
		errs = append(errs, errors.New("delivery.retry_multiplier must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
