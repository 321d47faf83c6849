// Package resilient wraps a Store with retries, a circuit breaker, client-side rate
// limiting and per-call instrumentation.
package resilient

import (
	"context"
	stderrors "errors"
	"iter"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/retry"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// BreakerConfig controls the circuit breaker.
type BreakerConfig struct {
	Enabled bool `yaml:"enabled"`

	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenTimeout is how long the circuit stays open before a probe is allowed.
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// HalfOpenRequests is the number of probes allowed while half-open.
	HalfOpenRequests uint32 `yaml:"half_open_requests"`
}

// Config controls the wrapper.
type Config struct {
	Retry   retry.Config  `yaml:"retry"`
	Breaker BreakerConfig `yaml:"breaker"`

	// RateLimit caps store calls per second; 0 disables limiting.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// DefaultConfig returns the wrapper settings used by the CLI.
func DefaultConfig() Config {
	return Config{
		Retry: retry.DefaultConfig(),
		Breaker: BreakerConfig{
			Enabled:          true,
			FailureThreshold: 10,
			OpenTimeout:      30 * time.Second,
			HalfOpenRequests: 1,
		},
	}
}

// Instrumentation receives per-call measurements. *metrics.Collector implements it.
type Instrumentation interface {
	RecordStoreOperation(backend, operation string, duration time.Duration, err error)
	RecordRetry(backend, operation string)
	SetCircuitState(backend string, state int)
}

// Store decorates another Store. It is safe for concurrent use.
type Store struct {
	inner   types.Store
	backend string
	retryer *retry.Retryer
	breaker *gobreaker.CircuitBreaker[struct{}]
	limiter *rate.Limiter
	inst    Instrumentation
	logger  *slog.Logger
}

// Wrap decorates inner. backend labels metrics and logs; inst may be nil.
func Wrap(inner types.Store, backend string, cfg Config, inst Instrumentation, logger *slog.Logger) *Store {
	if inst == nil {
		inst = nopInstrumentation{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		inner:   inner,
		backend: backend,
		retryer: retry.New(cfg.Retry),
		inst:    inst,
		logger:  logger.With("component", "resilient-store", "backend", backend),
	}

	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RateLimit))
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	if cfg.Breaker.Enabled {
		threshold := cfg.Breaker.FailureThreshold
		if threshold == 0 {
			threshold = 10
		}
		s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        backend,
			MaxRequests: cfg.Breaker.HalfOpenRequests,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: countsAsHealthy,
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.inst.SetCircuitState(name, stateValue(to))
				s.logger.Warn("circuit breaker state changed", "from", from.String(), "to", to.String())
			},
		})
		s.inst.SetCircuitState(backend, stateValue(gobreaker.StateClosed))
	}
	s.logger.Debug("store wrapped",
		"retry_attempts", s.retryer.Config().MaxAttempts,
		"circuit_breaker", s.breaker != nil,
		"rate_limit", cfg.RateLimit)
	return s
}

// Unwrap returns the decorated store.
func (s *Store) Unwrap() types.Store {
	return s.inner
}

func (s *Store) List(ctx context.Context, container string) iter.Seq2[types.ObjectRef, error] {
	return func(yield func(types.ObjectRef, error) bool) {
		var (
			yielded bool
			stopped bool
			midErr  error
		)
		err := s.do(ctx, "list", func(ctx context.Context) error {
			for ref, err := range s.inner.List(ctx, container) {
				if err != nil {
					if yielded {
						// a partial listing cannot be retried without repeating refs
						midErr = err
						return nil
					}
					return err
				}
				yielded = true
				if !yield(ref, nil) {
					stopped = true
					return nil
				}
			}
			return nil
		})
		if stopped {
			return
		}
		if midErr != nil {
			err = midErr
		}
		if err != nil {
			yield(types.ObjectRef{}, err)
		}
	}
}

func (s *Store) Stat(ctx context.Context, ref types.ObjectRef) (types.ObjectMetadata, error) {
	var meta types.ObjectMetadata
	err := s.do(ctx, "stat", func(ctx context.Context) error {
		var err error
		meta, err = s.inner.Stat(ctx, ref)
		return err
	})
	return meta, err
}

func (s *Store) Copy(ctx context.Context, src, dst types.ObjectRef) error {
	return s.do(ctx, "copy", func(ctx context.Context) error {
		return s.inner.Copy(ctx, src, dst)
	})
}

func (s *Store) Get(ctx context.Context, ref types.ObjectRef) ([]byte, error) {
	var data []byte
	err := s.do(ctx, "get", func(ctx context.Context) error {
		var err error
		data, err = s.inner.Get(ctx, ref)
		return err
	})
	return data, err
}

func (s *Store) Put(ctx context.Context, ref types.ObjectRef, data []byte, contentType string) error {
	return s.do(ctx, "put", func(ctx context.Context) error {
		return s.inner.Put(ctx, ref, data, contentType)
	})
}

func (s *Store) Delete(ctx context.Context, ref types.ObjectRef) error {
	return s.do(ctx, "delete", func(ctx context.Context) error {
		return s.inner.Delete(ctx, ref)
	})
}

// Ping checks container through the inner store when it supports it. Pings are not
// retried so health checks report an outage on the first failure.
func (s *Store) Ping(ctx context.Context, container string) error {
	p, ok := s.inner.(types.Pinger)
	if !ok {
		return nil
	}
	return s.doWith(ctx, s.retryer.WithMaxAttempts(1), "ping", func(ctx context.Context) error {
		return p.Ping(ctx, container)
	})
}

// Close closes the inner store when it holds resources.
func (s *Store) Close() error {
	if c, ok := s.inner.(types.Closer); ok {
		return c.Close()
	}
	return nil
}

func (s *Store) do(ctx context.Context, op string, fn func(context.Context) error) error {
	return s.doWith(ctx, s.retryer, op, fn)
}

func (s *Store) doWith(ctx context.Context, retryer *retry.Retryer, op string, fn func(context.Context) error) error {
	r := retryer.WithOnRetry(func(attempt int, err error, delay time.Duration) {
		s.inst.RecordRetry(s.backend, op)
		s.logger.Warn("retrying store call",
			"operation", op,
			"attempt", attempt,
			"delay", delay,
			"error", err)
	})

	return r.Do(ctx, func(ctx context.Context) error {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return errors.NewError(errors.ErrCodeOperationCanceled, "rate limiter wait: "+err.Error()).
					WithComponent(s.backend).
					WithOperation(op).
					WithCause(err)
			}
		}

		start := time.Now()
		err := s.execute(ctx, fn)
		s.inst.RecordStoreOperation(s.backend, op, time.Since(start), err)
		if err != nil {
			s.logger.Debug("store call failed", "operation", op, "error", err)
		}
		return err
	})
}

func (s *Store) execute(ctx context.Context, fn func(context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if stderrors.Is(err, gobreaker.ErrOpenState) || stderrors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.NewError(errors.ErrCodeCircuitOpen, "circuit open for backend "+s.backend).
			WithComponent(s.backend).
			WithCause(err)
	}
	return err
}

// countsAsHealthy decides which errors leave the breaker's failure count alone.
// Missing objects and caller cancellation say nothing about store health.
func countsAsHealthy(err error) bool {
	switch {
	case err == nil:
		return true
	case errors.IsNotFound(err):
		return true
	case stderrors.Is(err, context.Canceled):
		return true
	}
	switch errors.CodeOf(err) {
	case errors.ErrCodePermanent, errors.ErrCodeAccessDenied:
		return true
	}
	return false
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

type nopInstrumentation struct{}

func (nopInstrumentation) RecordStoreOperation(string, string, time.Duration, error) {}
func (nopInstrumentation) RecordRetry(string, string)                                {}
func (nopInstrumentation) SetCircuitState(string, int)                               {}

var (
	_ types.Store  = (*Store)(nil)
	_ types.Pinger = (*Store)(nil)
	_ types.Closer = (*Store)(nil)
)
