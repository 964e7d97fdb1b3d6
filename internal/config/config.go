// Package config loads CLI defaults (plan directory, concurrency,
// retry settings, logging) from a taskforge-config file via viper,
// layered under environment variables and flag overrides applied by
// the caller.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"taskforge/internal/errorsx"
)

// Config is the resolved set of CLI defaults.
type Config struct {
	PlanDir            string        `mapstructure:"plan_dir"`
	Concurrency        int           `mapstructure:"concurrency"`
	ResourceThreshold  float64       `mapstructure:"resource_threshold"`
	MemoryCeilingBytes uint64        `mapstructure:"memory_ceiling_bytes"`
	LongChainThreshold int           `mapstructure:"long_chain_threshold"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
	RetryMaxRetries    int           `mapstructure:"retry_max_retries"`
	RetryBaseDelay     time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay      time.Duration `mapstructure:"retry_max_delay"`
	RetryJitterFactor  float64       `mapstructure:"retry_jitter_factor"`
}

// defaults mirrors the layering order the teacher's Load applies:
// defaults first, then file, then environment — callers apply flag
// overrides on top of the result.
func defaults() Config {
	return Config{
		PlanDir:            ".taskforge",
		Concurrency:        3,
		ResourceThreshold:  0,
		MemoryCeilingBytes: 0,
		LongChainThreshold: 5,
		LogLevel:           "info",
		LogFormat:          "text",
		RetryMaxRetries:    3,
		RetryBaseDelay:     100 * time.Millisecond,
		RetryMaxDelay:      2 * time.Second,
		RetryJitterFactor:  0.5,
	}
}

// Load reads a taskforge-config.{json,yaml} file from the current
// directory or $HOME, falling back silently to defaults when no
// config file exists. On any error it returns the defaults alongside
// the error. Grounded on the teacher's
// viper.SetConfigName/AddConfigPath usage in cmd/cobra_cli.go.
func Load() (Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("taskforge-config")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME")
	v.SetEnvPrefix("TASKFORGE")
	v.AutomaticEnv()

	for key, val := range map[string]interface{}{
		"plan_dir":             cfg.PlanDir,
		"concurrency":          cfg.Concurrency,
		"resource_threshold":   cfg.ResourceThreshold,
		"memory_ceiling_bytes": cfg.MemoryCeilingBytes,
		"long_chain_threshold": cfg.LongChainThreshold,
		"log_level":            cfg.LogLevel,
		"log_format":           cfg.LogFormat,
		"retry_max_retries":    cfg.RetryMaxRetries,
		"retry_base_delay":     cfg.RetryBaseDelay,
		"retry_max_delay":      cfg.RetryMaxDelay,
		"retry_jitter_factor":  cfg.RetryJitterFactor,
	} {
		v.SetDefault(key, val)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return defaults(), errorsx.NewInvalidInput("failed to read taskforge-config", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return defaults(), errorsx.NewInvalidInput("failed to parse taskforge-config", err)
	}
	if err := cfg.Validate(); err != nil {
		return defaults(), err
	}
	return cfg, nil
}

// Validate checks the boundary constraints the executor and retry
// helper rely on.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", c.Concurrency)
	}
	if c.ResourceThreshold < 0 || c.ResourceThreshold > 1 {
		return fmt.Errorf("resource_threshold must be in [0,1], got %f", c.ResourceThreshold)
	}
	if c.LongChainThreshold < 1 {
		return fmt.Errorf("long_chain_threshold must be >= 1, got %d", c.LongChainThreshold)
	}
	return nil
}

// RetryConfig projects the retry-related fields into an
// errorsx.RetryConfig.
func (c Config) RetryConfig() errorsx.RetryConfig {
	return errorsx.RetryConfig{
		MaxRetries:   c.RetryMaxRetries,
		BaseDelay:    c.RetryBaseDelay,
		MaxDelay:     c.RetryMaxDelay,
		JitterFactor: c.RetryJitterFactor,
	}
}
