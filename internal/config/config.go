package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/tiercycle/tiercycle/internal/health"
	"github.com/tiercycle/tiercycle/internal/lifecycle"
	"github.com/tiercycle/tiercycle/internal/lock"
	"github.com/tiercycle/tiercycle/internal/metrics"
	"github.com/tiercycle/tiercycle/internal/storage"
	"github.com/tiercycle/tiercycle/internal/trigger"
	"github.com/tiercycle/tiercycle/pkg/logging"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// Configuration represents the complete application configuration
type Configuration struct {
	Lifecycle   LifecycleConfig   `yaml:"lifecycle"`
	Compression CompressionConfig `yaml:"compression"`
	Store       storage.Config    `yaml:"store"`
	Logging     logging.Config    `yaml:"logging"`
	Metrics     metrics.Config    `yaml:"metrics"`
	Trigger     trigger.Config    `yaml:"trigger"`
	Lock        lock.Config       `yaml:"lock"`
	Health      health.Config     `yaml:"health"`
}

// LifecycleConfig names the three tiers and the retention rule
type LifecycleConfig struct {
	IntakeContainer  string `yaml:"intake_container"`
	BackupContainer  string `yaml:"backup_container"`
	ArchiveContainer string `yaml:"archive_container"`
	RetentionDays    int    `yaml:"retention_days"`
	Concurrency      int    `yaml:"concurrency"`
	Prefix           string `yaml:"prefix"`
	DryRun           bool   `yaml:"dry_run"`
}

// CompressionConfig represents archive compression settings
type CompressionConfig struct {
	Level int `yaml:"level"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Lifecycle: LifecycleConfig{
			IntakeContainer:  "intake",
			BackupContainer:  "backup",
			ArchiveContainer: "archive",
			RetentionDays:    30,
			Concurrency:      lifecycle.DefaultConcurrency,
		},
		Compression: CompressionConfig{
			Level: 6,
		},
		Store: storage.DefaultConfig(),
		Logging: logging.Config{
			Level:  "INFO",
			Format: "json",
		},
		Metrics: metrics.Config{
			Enabled:   true,
			Addr:      ":9090",
			Path:      "/metrics",
			Namespace: "tiercycle",
		},
		Health: health.DefaultConfig(),
	}
}

// LoadFromFile loads configuration from a YAML file
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// LoadFromEnv loads configuration from TIERCYCLE_* environment variables
func (c *Configuration) LoadFromEnv() error {
	// Lifecycle settings
	if val := os.Getenv("TIERCYCLE_INTAKE_CONTAINER"); val != "" {
		c.Lifecycle.IntakeContainer = val
	}
	if val := os.Getenv("TIERCYCLE_BACKUP_CONTAINER"); val != "" {
		c.Lifecycle.BackupContainer = val
	}
	if val := os.Getenv("TIERCYCLE_ARCHIVE_CONTAINER"); val != "" {
		c.Lifecycle.ArchiveContainer = val
	}
	if val := os.Getenv("TIERCYCLE_RETENTION_DAYS"); val != "" {
		days, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid TIERCYCLE_RETENTION_DAYS %q: %w", val, err)
		}
		c.Lifecycle.RetentionDays = days
	}
	if val := os.Getenv("TIERCYCLE_CONCURRENCY"); val != "" {
		concurrency, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid TIERCYCLE_CONCURRENCY %q: %w", val, err)
		}
		c.Lifecycle.Concurrency = concurrency
	}
	if val := os.Getenv("TIERCYCLE_PREFIX"); val != "" {
		c.Lifecycle.Prefix = val
	}
	if val := os.Getenv("TIERCYCLE_DRY_RUN"); val != "" {
		c.Lifecycle.DryRun = strings.ToLower(val) == "true"
	}

	// Logging
	if val := os.Getenv("TIERCYCLE_LOG_LEVEL"); val != "" {
		c.Logging.Level = val
	}
	if val := os.Getenv("TIERCYCLE_LOG_FORMAT"); val != "" {
		c.Logging.Format = val
	}

	// Store
	if val := os.Getenv("TIERCYCLE_STORE_BACKEND"); val != "" {
		c.Store.Backend = val
	}
	if val := os.Getenv("TIERCYCLE_S3_REGION"); val != "" {
		c.Store.S3.Region = val
	}
	if val := os.Getenv("TIERCYCLE_S3_ENDPOINT"); val != "" {
		c.Store.S3.Endpoint = val
		c.Store.S3.ForcePathStyle = true
	}
	if val := os.Getenv("TIERCYCLE_AZURE_ACCOUNT"); val != "" {
		c.Store.Azure.AccountName = val
	}
	if val := os.Getenv("TIERCYCLE_AZURE_CONNECTION_STRING"); val != "" {
		c.Store.Azure.ConnectionString = val
	}

	// Metrics
	if val := os.Getenv("TIERCYCLE_METRICS_ADDR"); val != "" {
		c.Metrics.Addr = val
	}

	// Triggers and lock
	if val := os.Getenv("TIERCYCLE_SCHEDULE"); val != "" {
		c.Trigger.Schedule = val
	}
	if val := os.Getenv("TIERCYCLE_NATS_URL"); val != "" {
		c.Trigger.NATS.URL = val
	}
	if val := os.Getenv("TIERCYCLE_REDIS_ADDR"); val != "" {
		c.Lock.RedisAddr = val
	}

	return nil
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if err := c.RunRequest().Validate(); err != nil {
		return fmt.Errorf("lifecycle: %w", err)
	}

	if c.Compression.Level < 0 || c.Compression.Level > 9 {
		return fmt.Errorf("compression level must be between 1 and 9 (0 for default), got %d", c.Compression.Level)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: DEBUG, INFO, WARN, ERROR)", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logging.Format)
	}

	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics addr is required when metrics are enabled")
	}

	if err := c.Trigger.Validate(); err != nil {
		return fmt.Errorf("trigger: %w", err)
	}

	if c.Lock.TTL < 0 {
		return fmt.Errorf("lock ttl must not be negative")
	}

	if c.Health.CheckInterval < 0 || c.Health.Timeout < 0 {
		return fmt.Errorf("health check_interval and timeout must not be negative")
	}

	return nil
}

// RunRequest converts the lifecycle section into a coordinator request.
func (c *Configuration) RunRequest() lifecycle.RunRequest {
	return lifecycle.RunRequest{
		Intake:      c.Lifecycle.IntakeContainer,
		Backup:      c.Lifecycle.BackupContainer,
		Archive:     c.Lifecycle.ArchiveContainer,
		Policy:      types.RetentionPolicy{WindowDays: c.Lifecycle.RetentionDays},
		Concurrency: c.Lifecycle.Concurrency,
		Prefix:      c.Lifecycle.Prefix,
	}
}

// Containers returns the intake, backup and archive container names.
func (c *Configuration) Containers() []string {
	return []string{c.Lifecycle.IntakeContainer, c.Lifecycle.BackupContainer, c.Lifecycle.ArchiveContainer}
}
