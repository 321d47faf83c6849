package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// Test Constants
const (
	TestDebugLevel = "DEBUG"
	TestBucket     = "landing-zone"
)

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	// Lifecycle defaults
	if cfg.Lifecycle.IntakeContainer != "intake" {
		t.Errorf("Expected IntakeContainer to be intake, got %s", cfg.Lifecycle.IntakeContainer)
	}
	if cfg.Lifecycle.RetentionDays != 30 {
		t.Errorf("Expected RetentionDays to be 30, got %d", cfg.Lifecycle.RetentionDays)
	}
	if cfg.Lifecycle.Concurrency != 4 {
		t.Errorf("Expected Concurrency to be 4, got %d", cfg.Lifecycle.Concurrency)
	}
	if cfg.Lifecycle.DryRun {
		t.Error("Expected DryRun to be disabled by default")
	}

	// Store defaults
	if cfg.Store.Backend != "s3" {
		t.Errorf("Expected store backend to be s3, got %s", cfg.Store.Backend)
	}
	if !cfg.Store.Resilience.Breaker.Enabled {
		t.Error("Expected circuit breaker to be enabled by default")
	}

	// Logging and metrics
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected log level INFO, got %s", cfg.Logging.Level)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("Expected metrics addr :9090, got %s", cfg.Metrics.Addr)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to validate, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  func() *Configuration
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			config: func() *Configuration {
				return NewDefault()
			},
			wantErr: false,
		},
		{
			name: "missing archive container",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Lifecycle.ArchiveContainer = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "containers are required",
		},
		{
			name: "same backup and archive container",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Lifecycle.ArchiveContainer = cfg.Lifecycle.BackupContainer
				return cfg
			},
			wantErr: true,
			errMsg:  "must differ",
		},
		{
			name: "negative retention",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Lifecycle.RetentionDays = -1
				return cfg
			},
			wantErr: true,
			errMsg:  "retention window",
		},
		{
			name: "zero retention archives everything older than today",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Lifecycle.RetentionDays = 0
				return cfg
			},
			wantErr: false,
		},
		{
			name: "negative concurrency",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Lifecycle.Concurrency = -2
				return cfg
			},
			wantErr: true,
			errMsg:  "concurrency",
		},
		{
			name: "compression level out of range",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Compression.Level = 12
				return cfg
			},
			wantErr: true,
			errMsg:  "compression level",
		},
		{
			name: "invalid log level",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Logging.Level = "INVALID"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log level",
		},
		{
			name: "invalid log format",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Logging.Format = "xml"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid log format",
		},
		{
			name: "unknown backend",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Store.Backend = "floppy"
				return cfg
			},
			wantErr: true,
			errMsg:  "unknown store backend",
		},
		{
			name: "metrics enabled without addr",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Metrics.Addr = ""
				return cfg
			},
			wantErr: true,
			errMsg:  "metrics addr",
		},
		{
			name: "bad schedule",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Trigger.Schedule = "whenever"
				return cfg
			},
			wantErr: true,
			errMsg:  "invalid trigger schedule",
		},
		{
			name: "negative health interval",
			config: func() *Configuration {
				cfg := NewDefault()
				cfg.Health.CheckInterval = -time.Second
				return cfg
			},
			wantErr: true,
			errMsg:  "health check_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.config()
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %v, want error containing %v", err, tt.errMsg)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	configContent := `
lifecycle:
  intake_container: landing-zone
  backup_container: landing-backup
  archive_container: cold-archive
  retention_days: 45
  concurrency: 8
  prefix: invoices/

compression:
  level: 9

logging:
  level: DEBUG
  format: console

store:
  backend: azure
  azure:
    account_name: tiercycledev
    copy_poll_interval: 250ms
  resilience:
    rate_limit: 50
    retry:
      max_attempts: 6
    breaker:
      enabled: true
      failure_threshold: 3
      open_timeout: 45s

trigger:
  schedule: "0 * * * *"
  nats:
    url: nats://nats:4222
    subject: objects.arrived
    queue: tiercycle

lock:
  redis_addr: redis:6379
  ttl: 10m
`

	if err := os.WriteFile(configFile, []byte(configContent), 0600); err != nil {
		t.Fatalf("Failed to write test config file: %v", err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(configFile); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}

	if cfg.Lifecycle.IntakeContainer != TestBucket {
		t.Errorf("Expected IntakeContainer %s, got %s", TestBucket, cfg.Lifecycle.IntakeContainer)
	}
	if cfg.Lifecycle.RetentionDays != 45 {
		t.Errorf("Expected RetentionDays 45, got %d", cfg.Lifecycle.RetentionDays)
	}
	if cfg.Lifecycle.Prefix != "invoices/" {
		t.Errorf("Expected Prefix invoices/, got %s", cfg.Lifecycle.Prefix)
	}
	if cfg.Logging.Level != TestDebugLevel {
		t.Errorf("Expected log level DEBUG, got %s", cfg.Logging.Level)
	}
	if cfg.Store.Backend != "azure" || cfg.Store.Azure.AccountName != "tiercycledev" {
		t.Errorf("Expected azure backend for tiercycledev, got %s/%s", cfg.Store.Backend, cfg.Store.Azure.AccountName)
	}
	if cfg.Store.Azure.CopyPollInterval != 250*time.Millisecond {
		t.Errorf("Expected copy poll interval 250ms, got %v", cfg.Store.Azure.CopyPollInterval)
	}
	if cfg.Store.Resilience.Retry.MaxAttempts != 6 {
		t.Errorf("Expected 6 retry attempts, got %d", cfg.Store.Resilience.Retry.MaxAttempts)
	}
	if cfg.Store.Resilience.Breaker.OpenTimeout != 45*time.Second {
		t.Errorf("Expected breaker open timeout 45s, got %v", cfg.Store.Resilience.Breaker.OpenTimeout)
	}
	if cfg.Store.Resilience.RateLimit != 50 {
		t.Errorf("Expected rate limit 50, got %v", cfg.Store.Resilience.RateLimit)
	}
	if cfg.Trigger.NATS.Queue != "tiercycle" {
		t.Errorf("Expected NATS queue tiercycle, got %s", cfg.Trigger.NATS.Queue)
	}
	if cfg.Lock.TTL != 10*time.Minute {
		t.Errorf("Expected lock ttl 10m, got %v", cfg.Lock.TTL)
	}

	// settings absent from the file keep their defaults
	if cfg.Store.S3.Region != "us-east-1" {
		t.Errorf("Expected default S3 region to survive, got %s", cfg.Store.S3.Region)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Expected metrics to stay enabled")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected loaded config to validate, got %v", err)
	}
}

func TestLoadFromFileNonExistent(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error when loading non-existent config file")
	}
}

func TestLoadFromFileMalformed(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configFile, []byte("lifecycle: [not, a, map"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg := NewDefault()
	if err := cfg.LoadFromFile(configFile); err == nil {
		t.Error("Expected parse error for malformed YAML")
	}
}

func TestLoadFromEnv(t *testing.T) {
	testEnvVars := map[string]string{
		"TIERCYCLE_INTAKE_CONTAINER":  TestBucket,
		"TIERCYCLE_BACKUP_CONTAINER":  "landing-backup",
		"TIERCYCLE_ARCHIVE_CONTAINER": "cold-archive",
		"TIERCYCLE_RETENTION_DAYS":    "7",
		"TIERCYCLE_CONCURRENCY":       "16",
		"TIERCYCLE_DRY_RUN":           "TRUE",
		"TIERCYCLE_LOG_LEVEL":         "ERROR",
		"TIERCYCLE_LOG_FORMAT":        "console",
		"TIERCYCLE_STORE_BACKEND":     "gcs",
		"TIERCYCLE_S3_ENDPOINT":       "http://localhost:4566",
		"TIERCYCLE_METRICS_ADDR":      ":9191",
		"TIERCYCLE_SCHEDULE":          "@hourly",
		"TIERCYCLE_NATS_URL":          "nats://localhost:4222",
		"TIERCYCLE_REDIS_ADDR":        "localhost:6379",
	}
	for key, value := range testEnvVars {
		t.Setenv(key, value)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Lifecycle.IntakeContainer != TestBucket {
		t.Errorf("Expected IntakeContainer %s, got %s", TestBucket, cfg.Lifecycle.IntakeContainer)
	}
	if cfg.Lifecycle.RetentionDays != 7 {
		t.Errorf("Expected RetentionDays 7, got %d", cfg.Lifecycle.RetentionDays)
	}
	if cfg.Lifecycle.Concurrency != 16 {
		t.Errorf("Expected Concurrency 16, got %d", cfg.Lifecycle.Concurrency)
	}
	if !cfg.Lifecycle.DryRun {
		t.Error("Expected DryRun to be enabled")
	}
	if cfg.Logging.Level != "ERROR" || cfg.Logging.Format != "console" {
		t.Errorf("Expected ERROR/console logging, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Store.Backend != "gcs" {
		t.Errorf("Expected gcs backend, got %s", cfg.Store.Backend)
	}
	if cfg.Store.S3.Endpoint != "http://localhost:4566" || !cfg.Store.S3.ForcePathStyle {
		t.Error("Expected S3 endpoint override to force path style")
	}
	if cfg.Metrics.Addr != ":9191" {
		t.Errorf("Expected metrics addr :9191, got %s", cfg.Metrics.Addr)
	}
	if cfg.Trigger.Schedule != "@hourly" || cfg.Trigger.NATS.URL != "nats://localhost:4222" {
		t.Error("Expected trigger settings from environment")
	}
	if cfg.Lock.RedisAddr != "localhost:6379" {
		t.Errorf("Expected redis addr localhost:6379, got %s", cfg.Lock.RedisAddr)
	}
}

func TestLoadFromEnvInvalidNumber(t *testing.T) {
	t.Setenv("TIERCYCLE_RETENTION_DAYS", "thirty")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err == nil || !strings.Contains(err.Error(), "TIERCYCLE_RETENTION_DAYS") {
		t.Errorf("Expected error naming TIERCYCLE_RETENTION_DAYS, got %v", err)
	}
}

func TestSaveToFileRoundTrip(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := NewDefault()
	cfg.Lifecycle.RetentionDays = 90
	cfg.Trigger.Schedule = "@daily"
	if err := cfg.SaveToFile(configFile); err != nil {
		t.Fatalf("SaveToFile() error = %v", err)
	}

	loaded := NewDefault()
	if err := loaded.LoadFromFile(configFile); err != nil {
		t.Fatalf("LoadFromFile() error = %v", err)
	}
	if loaded.Lifecycle.RetentionDays != 90 || loaded.Trigger.Schedule != "@daily" {
		t.Errorf("Expected saved values to load back, got %d/%s", loaded.Lifecycle.RetentionDays, loaded.Trigger.Schedule)
	}
}

func TestRunRequest(t *testing.T) {
	cfg := NewDefault()
	cfg.Lifecycle.Prefix = "2026/"

	req := cfg.RunRequest()
	if req.Intake != "intake" || req.Backup != "backup" || req.Archive != "archive" {
		t.Errorf("Unexpected containers %s/%s/%s", req.Intake, req.Backup, req.Archive)
	}
	if req.Policy.WindowDays != 30 || req.Prefix != "2026/" {
		t.Errorf("Unexpected policy %d or prefix %s", req.Policy.WindowDays, req.Prefix)
	}
	if got := cfg.Containers(); len(got) != 3 || got[2] != "archive" {
		t.Errorf("Unexpected containers %v", got)
	}
}
