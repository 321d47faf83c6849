/*
Package config loads tiercycle configuration from defaults, a YAML file and TIERCYCLE_*
environment variables.

# Precedence

	┌─────────────────────────────────────────────┐
	│        CLI flags (--dry-run, --prefix)      │ ← Highest Priority
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│        Environment Variables                │
	│           (TIERCYCLE_*)                     │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│         Configuration File (YAML)           │
	└─────────────────────────────────────────────┘
	                      │
	┌─────────────────────────────────────────────┐
	│           Default Values (NewDefault)       │ ← Lowest Priority
	└─────────────────────────────────────────────┘

# Sections

	lifecycle:    intake/backup/archive containers, retention_days, concurrency, prefix, dry_run
	compression:  gzip level for archive objects
	store:        backend (s3, azure, gcs, memory), per-backend settings, resilience
	logging:      level and format (json or console)
	metrics:      Prometheus endpoint
	trigger:      cron schedule and NATS subscription for tiercycle serve
	lock:         Redis address and lease TTL; empty means a process-local lock
	health:       readiness check interval and timeout for tiercycle serve

# Usage

	cfg := config.NewDefault()
	if path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	summary, err := coordinator.Run(ctx, cfg.RunRequest())

# Environment Variables

	TIERCYCLE_INTAKE_CONTAINER    TIERCYCLE_BACKUP_CONTAINER    TIERCYCLE_ARCHIVE_CONTAINER
	TIERCYCLE_RETENTION_DAYS      TIERCYCLE_CONCURRENCY         TIERCYCLE_PREFIX
	TIERCYCLE_DRY_RUN             TIERCYCLE_LOG_LEVEL           TIERCYCLE_LOG_FORMAT
	TIERCYCLE_STORE_BACKEND       TIERCYCLE_S3_REGION           TIERCYCLE_S3_ENDPOINT
	TIERCYCLE_AZURE_ACCOUNT       TIERCYCLE_AZURE_CONNECTION_STRING
	TIERCYCLE_METRICS_ADDR        TIERCYCLE_SCHEDULE            TIERCYCLE_NATS_URL
	TIERCYCLE_REDIS_ADDR

Malformed numeric values are reported rather than ignored.
*/
package config
