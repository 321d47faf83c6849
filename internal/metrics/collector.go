package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tierrors "github.com/tiercycle/tiercycle/pkg/errors"
)

// Collector exposes pipeline and store metrics on a private Prometheus registry.
type Collector struct {
	mu       sync.RWMutex
	config   *Config
	registry *prometheus.Registry
	logger   *slog.Logger

	objectsProcessed *prometheus.CounterVec
	objectDuration   *prometheus.HistogramVec
	objectSize       prometheus.Histogram
	objectsInFlight  prometheus.Gauge

	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Histogram
	lastRunObjects *prometheus.GaugeVec
	lastRunTime    prometheus.Gauge

	storeOperations *prometheus.CounterVec
	storeDuration   *prometheus.HistogramVec
	storeErrors     *prometheus.CounterVec
	storeRetries    *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec

	lockAttempts *prometheus.CounterVec
	triggers     *prometheus.CounterVec

	lastRun RunSnapshot
	server  *http.Server
	extra   map[string]http.Handler
}

// Config represents metrics configuration.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// RunSnapshot is the most recent run as reported by /health.
type RunSnapshot struct {
	Status   string        `json:"status"`
	Finished time.Time     `json:"finished"`
	Duration time.Duration `json:"duration"`
	Total    int           `json:"total"`
	Failed   int           `json:"failed"`
}

// NewCollector creates a collector. A nil config enables metrics on :9090/metrics.
func NewCollector(config *Config, logger *slog.Logger) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Addr:      ":9090",
			Path:      "/metrics",
			Namespace: "tiercycle",
		}
	}
	if config.Path == "" {
		config.Path = "/metrics"
	}
	if config.Namespace == "" {
		config.Namespace = "tiercycle"
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Collector{config: config, logger: logger.With("component", "metrics")}
	if !config.Enabled {
		return c, nil
	}

	c.registry = prometheus.NewRegistry()
	c.initMetrics()
	if err := c.registerMetrics(); err != nil {
		return nil, err
	}
	return c, nil
}

// Registry returns the underlying registry, nil when disabled.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Mount adds h to the metrics server at path. It must be called before Start.
func (c *Collector) Mount(path string, h http.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.extra == nil {
		c.extra = make(map[string]http.Handler)
	}
	c.extra[path] = h
}

// Handler returns the HTTP handler serving metrics, /health and mounted handlers.
func (c *Collector) Handler() http.Handler {
	mux := http.NewServeMux()
	if c.config.Enabled {
		mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	mux.HandleFunc("/health", c.healthHandler)

	c.mu.RLock()
	for path, h := range c.extra {
		mux.Handle(path, h)
	}
	c.mu.RUnlock()
	return mux
}

// Start serves Handler on config.Addr until Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	if !c.config.Enabled || c.config.Addr == "" {
		return nil
	}

	ln, err := net.Listen("tcp", c.config.Addr)
	if err != nil {
		return tierrors.NewError(tierrors.ErrCodeInvalidConfig, "metrics listener: "+err.Error()).
			WithComponent("metrics").
			WithCause(err)
	}

	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: 30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := c.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server stopped", "error", err)
		}
	}()
	c.logger.Info("metrics server listening", "addr", ln.Addr().String(), "path", c.config.Path)
	return nil
}

// Stop shuts the metrics server down.
func (c *Collector) Stop(ctx context.Context) error {
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}

// RecordOutcome records one processed object.
func (c *Collector) RecordOutcome(kind, stage string, duration time.Duration, size int64) {
	if !c.config.Enabled {
		return
	}
	if stage == "" {
		stage = "none"
	}
	c.objectsProcessed.WithLabelValues(kind, stage).Inc()
	c.objectDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if size > 0 {
		c.objectSize.Observe(float64(size))
	}
}

// RecordRun records a finished run.
func (c *Collector) RecordRun(status string, duration time.Duration, total, failed int) {
	c.mu.Lock()
	c.lastRun = RunSnapshot{
		Status:   status,
		Finished: time.Now(),
		Duration: duration,
		Total:    total,
		Failed:   failed,
	}
	c.mu.Unlock()

	if !c.config.Enabled {
		return
	}
	c.runsTotal.WithLabelValues(status).Inc()
	c.runDuration.Observe(duration.Seconds())
	c.lastRunObjects.WithLabelValues("total").Set(float64(total))
	c.lastRunObjects.WithLabelValues("failed").Set(float64(failed))
	c.lastRunTime.SetToCurrentTime()
}

// AddInFlight adjusts the number of objects currently being processed.
func (c *Collector) AddInFlight(delta float64) {
	if !c.config.Enabled {
		return
	}
	c.objectsInFlight.Add(delta)
}

// RecordStoreOperation records one store call and classifies its error, if any.
func (c *Collector) RecordStoreOperation(backend, operation string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		c.storeErrors.WithLabelValues(backend, operation, classifyError(err)).Inc()
	}
	c.storeOperations.WithLabelValues(backend, operation, status).Inc()
	c.storeDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
}

// RecordRetry records a store call being retried.
func (c *Collector) RecordRetry(backend, operation string) {
	if !c.config.Enabled {
		return
	}
	c.storeRetries.WithLabelValues(backend, operation).Inc()
}

// SetCircuitState publishes the breaker state: 0 closed, 1 half-open, 2 open.
func (c *Collector) SetCircuitState(backend string, state int) {
	if !c.config.Enabled {
		return
	}
	c.circuitState.WithLabelValues(backend).Set(float64(state))
}

// RecordLock records a run lock attempt with result acquired, held or error.
func (c *Collector) RecordLock(result string) {
	if !c.config.Enabled {
		return
	}
	c.lockAttempts.WithLabelValues(result).Inc()
}

// RecordTrigger records a run request from source (manual, cron, nats).
func (c *Collector) RecordTrigger(source string) {
	if !c.config.Enabled {
		return
	}
	c.triggers.WithLabelValues(source).Inc()
}

// LastRun returns the most recent run snapshot.
func (c *Collector) LastRun() RunSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastRun
}

func (c *Collector) initMetrics() {
	ns := c.config.Namespace

	c.objectsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "objects_processed_total",
		Help:      "Objects processed, by outcome and failing stage",
	}, []string{"outcome", "stage"})

	c.objectDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "object_duration_seconds",
		Help:      "Time to take one object through the pipeline",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14), // 5ms to ~41s
	}, []string{"outcome"})

	c.objectSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "object_size_bytes",
		Help:      "Size of processed objects",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 12), // 1KB to ~4GB
	})

	c.objectsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "objects_in_flight",
		Help:      "Objects currently held by a worker",
	})

	c.runsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "runs_total",
		Help:      "Pipeline runs, by final status",
	}, []string{"status"})

	c.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "run_duration_seconds",
		Help:      "Duration of pipeline runs",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 16), // 100ms to ~1.8h
	})

	c.lastRunObjects = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "last_run_objects",
		Help:      "Object counts of the most recent run",
	}, []string{"kind"})

	c.lastRunTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix time the most recent run finished",
	})

	c.storeOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Object store calls",
	}, []string{"backend", "operation", "status"})

	c.storeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns,
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Object store call latency",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
	}, []string{"backend", "operation"})

	c.storeErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Object store errors by class",
	}, []string{"backend", "operation", "type"})

	c.storeRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Subsystem: "store",
		Name:      "retries_total",
		Help:      "Object store calls retried after a transient error",
	}, []string{"backend", "operation"})

	c.circuitState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns,
		Subsystem: "store",
		Name:      "circuit_state",
		Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"backend"})

	c.lockAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "lock_attempts_total",
		Help:      "Run lock attempts by result",
	}, []string{"result"})

	c.triggers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "triggers_total",
		Help:      "Run requests by source",
	}, []string{"source"})
}

func (c *Collector) registerMetrics() error {
	for _, m := range []prometheus.Collector{
		c.objectsProcessed,
		c.objectDuration,
		c.objectSize,
		c.objectsInFlight,
		c.runsTotal,
		c.runDuration,
		c.lastRunObjects,
		c.lastRunTime,
		c.storeOperations,
		c.storeDuration,
		c.storeErrors,
		c.storeRetries,
		c.circuitState,
		c.lockAttempts,
		c.triggers,
	} {
		if err := c.registry.Register(m); err != nil {
			return err
		}
	}
	return nil
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	switch tierrors.CodeOf(err) {
	case tierrors.ErrCodeObjectNotFound:
		return "not_found"
	case tierrors.ErrCodeAccessDenied:
		return "permission"
	case tierrors.ErrCodeThrottled:
		return "throttling"
	case tierrors.ErrCodeTransient:
		return "transient"
	case tierrors.ErrCodeCircuitOpen:
		return "circuit_open"
	case tierrors.ErrCodePermanent, tierrors.ErrCodeContainerNotFound:
		return "permanent"
	}
	return "other"
}

func (c *Collector) healthHandler(w http.ResponseWriter, _ *http.Request) {
	body := struct {
		Status  string      `json:"status"`
		Service string      `json:"service"`
		LastRun RunSnapshot `json:"last_run"`
	}{"healthy", "tiercycle", c.LastRun()}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
