// Package health runs periodic readiness checks for tiercycle serve and reports them
// over HTTP. A check is typically a Ping of one lifecycle container.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Checker runs registered checks on an interval and keeps the latest results.
type Checker struct {
	mu      sync.RWMutex
	config  Config
	logger  *slog.Logger
	checks  map[string]CheckFunction
	results map[string]*Result
	stopCh  chan struct{}
	done    chan struct{}
	started bool
}

// Config represents health checker configuration
type Config struct {
	CheckInterval time.Duration `yaml:"check_interval"`
	Timeout       time.Duration `yaml:"timeout"`
}

// CheckFunction defines the signature for health check functions
type CheckFunction func(ctx context.Context) error

// Result represents the result of a health check
type Result struct {
	Check     string        `json:"check"`
	Status    Status        `json:"status"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Error     string        `json:"error,omitempty"`
}

// Report is the body served by Handler.
type Report struct {
	Status Status             `json:"status"`
	Checks map[string]*Result `json:"checks"`
}

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusUnknown   Status = "unknown"
)

// DefaultConfig checks every 30s with a 10s per-check timeout.
func DefaultConfig() Config {
	return Config{
		CheckInterval: 30 * time.Second,
		Timeout:       10 * time.Second,
	}
}

// NewChecker creates a new health checker
func NewChecker(config Config, logger *slog.Logger) *Checker {
	defaults := DefaultConfig()
	if config.CheckInterval <= 0 {
		config.CheckInterval = defaults.CheckInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		config:  config,
		logger:  logger.With("component", "health"),
		checks:  make(map[string]CheckFunction),
		results: make(map[string]*Result),
	}
}

// RegisterCheck registers a new health check
func (c *Checker) RegisterCheck(name string, fn CheckFunction) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.checks[name]; exists {
		return fmt.Errorf("health check %s already registered", name)
	}
	c.checks[name] = fn
	return nil
}

// Start runs every check once and then on each interval until Stop.
func (c *Checker) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("health checker already started")
	}
	c.started = true
	c.stopCh = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	c.RunAllChecks(ctx)
	go c.checkLoop(ctx)
	return nil
}

// Stop halts the background loop and waits for it to exit.
func (c *Checker) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	close(c.stopCh)
	done := c.done
	c.mu.Unlock()
	<-done
}

// RunAllChecks executes all registered checks concurrently and stores the results.
func (c *Checker) RunAllChecks(ctx context.Context) map[string]*Result {
	c.mu.RLock()
	checks := make(map[string]CheckFunction, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	resultsChan := make(chan *Result, len(checks))
	for name, fn := range checks {
		go func() {
			resultsChan <- c.executeCheck(ctx, name, fn)
		}()
	}

	results := make(map[string]*Result, len(checks))
	for range checks {
		result := <-resultsChan
		results[result.Check] = result
		if result.Status != StatusHealthy {
			c.logger.Warn("health check failed", "check", result.Check, "error", result.Error)
		}
	}

	c.mu.Lock()
	for name, result := range results {
		c.results[name] = result
	}
	c.mu.Unlock()
	return results
}

// Report returns the latest results. Overall status is unknown until every check has
// run once, and unhealthy when any check failed.
func (c *Checker) Report() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()

	report := Report{Status: StatusHealthy, Checks: make(map[string]*Result, len(c.results))}
	for name := range c.checks {
		result, ok := c.results[name]
		if !ok {
			report.Status = StatusUnknown
			continue
		}
		report.Checks[name] = result
		if result.Status != StatusHealthy && report.Status == StatusHealthy {
			report.Status = StatusUnhealthy
		}
	}
	return report
}

// IsHealthy returns whether the system is considered healthy
func (c *Checker) IsHealthy() bool {
	return c.Report().Status == StatusHealthy
}

// Names returns the registered check names, sorted.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler serves Report as JSON: 200 when healthy, 503 otherwise.
func (c *Checker) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		report := c.Report()
		w.Header().Set("Content-Type", "application/json")
		if report.Status != StatusHealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(report)
	})
}

func (c *Checker) executeCheck(ctx context.Context, name string, fn CheckFunction) *Result {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	err := fn(checkCtx)
	result := &Result{
		Check:     name,
		Status:    StatusHealthy,
		Duration:  time.Since(start),
		Timestamp: start,
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
	}
	return result
}

func (c *Checker) checkLoop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunAllChecks(ctx)
		}
	}
}

// StorageCheck wraps a container ping as a check.
func StorageCheck(ping func(ctx context.Context, container string) error, container string) CheckFunction {
	return func(ctx context.Context) error {
		return ping(ctx, container)
	}
}
