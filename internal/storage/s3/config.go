package s3

import (
	"fmt"
)

// Config represents S3 backend configuration
type Config struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	// MaxRetries is the SDK's own retry budget. The resilient wrapper retries on top of it,
	// so keep this low.
	MaxRetries int `yaml:"max_retries"`

	// CargoShip upload settings
	CargoShip CargoShipConfig `yaml:"cargoship"`
}

// CargoShipConfig controls optimized uploads for large archive objects.
type CargoShipConfig struct {
	Enabled bool `yaml:"enabled"`

	// Threshold is the object size in bytes at or above which Put goes through CargoShip.
	Threshold   int64 `yaml:"threshold"`
	ChunkSize   int64 `yaml:"chunk_size"`
	Concurrency int   `yaml:"concurrency"`
}

// DefaultConfig returns the settings used when the config file omits the s3 section.
func DefaultConfig() Config {
	return Config{
		Region:     "us-east-1",
		MaxRetries: 1,
		CargoShip: CargoShipConfig{
			Enabled:     false,
			Threshold:   32 * 1024 * 1024,
			ChunkSize:   16 * 1024 * 1024,
			Concurrency: 8,
		},
	}
}

// Validate checks the settings NewBackend relies on.
func (c Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("s3 region is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return fmt.Errorf("s3 access_key_id and secret_access_key must be set together")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("s3 max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.CargoShip.Enabled && c.CargoShip.Threshold <= 0 {
		return fmt.Errorf("s3 cargoship threshold must be positive when enabled")
	}
	return nil
}
