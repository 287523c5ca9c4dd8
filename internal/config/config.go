// Package config resolves the collector configuration from environment
// variables (prefix REPOHEALTH_) with CLI flag overrides.
// Priority: flags > environment > defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the collector configuration.
type Config struct {
	GitHubToken string `mapstructure:"github_token"`

	CheckpointPath string `mapstructure:"checkpoint_path"`
	DatasetPath    string `mapstructure:"dataset_path"`

	MinStars   int `mapstructure:"min_stars"`
	PerPage    int `mapstructure:"per_page"`
	MaxRecords int `mapstructure:"max_records"`

	BatchInterval    time.Duration `mapstructure:"batch_interval"`
	RecoveryAttempts int           `mapstructure:"recovery_attempts"`
	RecoveryCooldown time.Duration `mapstructure:"recovery_cooldown"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`

	NATSUrl     string `mapstructure:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject"`

	CronSchedule string `mapstructure:"cron_schedule"`
	RunOnStartup bool   `mapstructure:"run_on_startup"`
}

// Load resolves configuration without flag overrides.
func Load() (*Config, error) {
	return LoadWithFlags(nil)
}

// LoadWithFlags resolves configuration with optional CLI flag overrides.
func LoadWithFlags(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("checkpoint_path", "data/checkpoint.json")
	v.SetDefault("dataset_path", "data/repositories.arff")
	v.SetDefault("min_stars", 100)
	v.SetDefault("per_page", 100)
	v.SetDefault("max_records", 15000)
	v.SetDefault("batch_interval", 5*time.Minute)
	v.SetDefault("recovery_attempts", 3)
	v.SetDefault("recovery_cooldown", 2*time.Minute)
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("nats_subject", "repohealth.records")
	v.SetDefault("run_on_startup", false)

	v.SetEnvPrefix("REPOHEALTH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		bindings := map[string]string{
			"checkpoint_path": "checkpoint-path",
			"dataset_path":    "dataset-path",
			"min_stars":       "min-stars",
			"max_records":     "max-records",
			"nats_url":        "nats-url",
			"cron_schedule":   "cron-schedule",
		}
		for key, flagName := range bindings {
			if flag := flags.Lookup(flagName); flag != nil && flag.Changed {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", flagName, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	// The unprefixed GITHUB_TOKEN stays honored for compatibility with the
	// original collector deployment.
	if cfg.GitHubToken == "" {
		cfg.GitHubToken = os.Getenv("GITHUB_TOKEN")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RegisterFlags registers the CLI flag overrides on the given FlagSet.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("checkpoint-path", "", "Path of the JSON checkpoint file")
	flags.String("dataset-path", "", "Path of the ARFF dataset output")
	flags.Int("min-stars", 0, "Minimum star count for the discovery query")
	flags.Int("max-records", 0, "Valid record count at which the crawl stops")
	flags.String("nats-url", "", "NATS server URL for record publishing (optional)")
	flags.String("cron-schedule", "", "Cron expression for scheduled batch mode (optional)")
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.CheckpointPath) == "" {
		return fmt.Errorf("checkpoint_path must not be empty")
	}
	if strings.TrimSpace(c.DatasetPath) == "" {
		return fmt.Errorf("dataset_path must not be empty")
	}
	if c.PerPage <= 0 || c.PerPage > 100 {
		return fmt.Errorf("per_page must be between 1 and 100, got %d", c.PerPage)
	}
	if c.MaxRecords <= 0 {
		return fmt.Errorf("max_records must be positive, got %d", c.MaxRecords)
	}
	if c.RecoveryAttempts < 0 {
		return fmt.Errorf("recovery_attempts must not be negative, got %d", c.RecoveryAttempts)
	}
	if c.BatchInterval <= 0 {
		return fmt.Errorf("batch_interval must be positive, got %s", c.BatchInterval)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout)
	}
	return nil
}
