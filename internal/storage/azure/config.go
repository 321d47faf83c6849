package azure

import (
	"fmt"
	"time"
)

// Config represents Azure Blob Storage backend configuration
type Config struct {
	// AccountName selects https://<account>.blob.core.windows.net unless ServiceURL is set.
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`

	// ServiceURL overrides the account endpoint, e.g. for Azurite.
	ServiceURL string `yaml:"service_url"`

	// ConnectionString takes precedence over every other credential setting.
	ConnectionString string `yaml:"connection_string"`

	MaxRetries int32 `yaml:"max_retries"`

	// CopyPollInterval and CopyTimeout bound the wait for an asynchronous server-side copy.
	CopyPollInterval time.Duration `yaml:"copy_poll_interval"`
	CopyTimeout      time.Duration `yaml:"copy_timeout"`
}

// DefaultConfig returns the settings used when the config file omits the azure section.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       1,
		CopyPollInterval: 500 * time.Millisecond,
		CopyTimeout:      5 * time.Minute,
	}
}

// Validate checks the settings NewBackend relies on.
func (c Config) Validate() error {
	if c.ConnectionString == "" && c.AccountName == "" && c.ServiceURL == "" {
		return fmt.Errorf("azure account_name, service_url or connection_string is required")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("azure max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.CopyPollInterval < 0 || c.CopyTimeout < 0 {
		return fmt.Errorf("azure copy poll interval and timeout must not be negative")
	}
	return nil
}

func (c Config) serviceURL() string {
	if c.ServiceURL != "" {
		return c.ServiceURL
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net", c.AccountName)
}
