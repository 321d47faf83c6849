// Package storage opens the configured object store backend and wraps it in the
// resilient layer.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tiercycle/tiercycle/internal/storage/azure"
	"github.com/tiercycle/tiercycle/internal/storage/gcs"
	"github.com/tiercycle/tiercycle/internal/storage/memory"
	"github.com/tiercycle/tiercycle/internal/storage/resilient"
	"github.com/tiercycle/tiercycle/internal/storage/s3"
	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// Backend names accepted in Config.Backend.
const (
	BackendS3     = "s3"
	BackendAzure  = "azure"
	BackendGCS    = "gcs"
	BackendMemory = "memory"
)

// Config selects and configures one backend.
type Config struct {
	Backend string `yaml:"backend"`

	S3    s3.Config    `yaml:"s3"`
	Azure azure.Config `yaml:"azure"`
	GCS   gcs.Config   `yaml:"gcs"`

	Resilience resilient.Config `yaml:"resilience"`
}

// DefaultConfig returns an S3 store with the default resilience settings.
func DefaultConfig() Config {
	return Config{
		Backend:    BackendS3,
		S3:         s3.DefaultConfig(),
		Azure:      azure.DefaultConfig(),
		Resilience: resilient.DefaultConfig(),
	}
}

// Validate checks the selected backend's settings only.
func (c Config) Validate() error {
	switch strings.ToLower(c.Backend) {
	case BackendS3:
		return c.S3.Validate()
	case BackendAzure:
		return c.Azure.Validate()
	case BackendGCS:
		return c.GCS.Validate()
	case BackendMemory:
		return nil
	default:
		return fmt.Errorf("unknown store backend %q (must be one of: s3, azure, gcs, memory)", c.Backend)
	}
}

// Open builds the backend named by cfg.Backend and wraps it in resilient.Store.
// containers pre-creates containers for the memory backend and is ignored otherwise.
func Open(ctx context.Context, cfg Config, containers []string, logger *slog.Logger, inst resilient.Instrumentation) (*resilient.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, err.Error()).
			WithComponent("storage").
			WithOperation("open")
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := strings.ToLower(cfg.Backend)
	var (
		inner types.Store
		err   error
	)
	switch backend {
	case BackendS3:
		inner, err = s3.NewBackend(ctx, cfg.S3, logger)
	case BackendAzure:
		inner, err = azure.NewBackend(ctx, cfg.Azure, logger)
	case BackendGCS:
		inner, err = gcs.NewBackend(ctx, cfg.GCS, logger)
	case BackendMemory:
		inner = memory.New(containers)
	}
	if err != nil {
		return nil, err
	}

	logger.Info("object store opened",
		"backend", backend,
		"retry_attempts", cfg.Resilience.Retry.MaxAttempts,
		"circuit_breaker", cfg.Resilience.Breaker.Enabled,
		"rate_limit", cfg.Resilience.RateLimit)
	return resilient.Wrap(inner, backend, cfg.Resilience, inst, logger), nil
}
