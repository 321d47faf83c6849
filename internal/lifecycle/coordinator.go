package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tiercycle/tiercycle/internal/compress"
	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// DefaultConcurrency is the worker count used when a request does not set one.
const DefaultConcurrency = 4

// RunRequest describes one pass over the intake container.
type RunRequest struct {
	Intake      string
	Backup      string
	Archive     string
	Policy      types.RetentionPolicy
	Concurrency int

	// Prefix restricts the run to intake keys starting with it.
	Prefix string
}

// Validate checks the request before any store call is made.
func (r RunRequest) Validate() error {
	switch {
	case r.Intake == "" || r.Backup == "" || r.Archive == "":
		return errors.NewError(errors.ErrCodeInvalidConfig, "intake, backup and archive containers are required").
			WithComponent("coordinator")
	case r.Intake == r.Backup || r.Backup == r.Archive || r.Intake == r.Archive:
		return errors.NewError(errors.ErrCodeInvalidConfig, "intake, backup and archive containers must differ").
			WithComponent("coordinator")
	case r.Concurrency < 0:
		return errors.NewError(errors.ErrCodeInvalidConfig, fmt.Sprintf("concurrency must be >= 0, got %d", r.Concurrency)).
			WithComponent("coordinator")
	}
	if err := r.Policy.Validate(); err != nil {
		return errors.NewError(errors.ErrCodeInvalidConfig, err.Error()).WithComponent("coordinator")
	}
	return nil
}

// Coordinator lists the intake container and fans objects out to a fixed worker pool.
type Coordinator struct {
	store     types.Store
	processor *Processor
	logger    *slog.Logger
	recorder  Recorder
	now       func() time.Time
	newRunID  func() string
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithClock overrides the evaluation time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithProcessor replaces the default Processor.
func WithProcessor(p *Processor) Option {
	return func(c *Coordinator) { c.processor = p }
}

// NewCoordinator creates a Coordinator for store.
func NewCoordinator(store types.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    store,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.processor == nil {
		c.processor = NewProcessor(store, compress.New(0), c.logger, false)
	}
	c.logger = c.logger.With("component", "coordinator")
	return c
}

// Run processes every object listed in req.Intake and returns the batch summary.
//
// A listing error aborts the run before any object is processed. Cancelling ctx
// stops dispatch; objects already handed to a worker finish against a context
// detached from ctx, and objects never dispatched are reported as failed at the
// replicate stage. In that case Run returns the summary together with ctx's error.
func (c *Coordinator) Run(ctx context.Context, req RunRequest) (BatchSummary, error) {
	if err := req.Validate(); err != nil {
		return BatchSummary{}, err
	}
	concurrency := req.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}

	start := time.Now()
	summary := BatchSummary{RunID: c.newRunID()}
	logger := c.logger.With("run_id", summary.RunID, "intake", req.Intake)

	refs, err := c.snapshot(ctx, req)
	if err != nil {
		summary.Duration = time.Since(start)
		c.recorder.RecordRun("list_failed", summary.Duration, 0, 0)
		logger.Error("listing intake failed", "error", err)
		return summary, fmt.Errorf("list intake container %s: %w", req.Intake, err)
	}
	logger.Info("run started", "objects", len(refs), "concurrency", concurrency,
		"window_days", req.Policy.WindowDays)

	plan := Plan{Backup: req.Backup, Archive: req.Archive, Policy: req.Policy}
	now := c.now()
	workCtx := context.WithoutCancel(ctx)

	jobs := make(chan types.ObjectRef)
	results := make(chan Outcome)

	var workers sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for ref := range jobs {
				c.recorder.AddInFlight(1)
				out := c.processor.Process(workCtx, ref, plan, now)
				c.recorder.AddInFlight(-1)
				results <- out
			}
		}()
	}

	var skipped int
	var dispatcher sync.WaitGroup
	dispatcher.Add(1)
	go func() {
		defer dispatcher.Done()
		defer close(jobs)
		for i, ref := range refs {
			if ctx.Err() == nil {
				select {
				case jobs <- ref:
					continue
				case <-ctx.Done():
				}
			}
			for _, rest := range refs[i:] {
				skipped++
				results <- failed(rest, StageReplicate, ctx.Err())
			}
			return
		}
	}()

	go func() {
		workers.Wait()
		dispatcher.Wait()
		close(results)
	}()

	for out := range results {
		summary.add(out)
		c.recorder.RecordOutcome(out.Kind.String(), string(out.Stage), out.Duration, out.Size)
		logger.LogAttrs(workCtx, out.level(), "object processed", out.attrs()...)
	}
	summary.Duration = time.Since(start)

	status := "completed"
	var runErr error
	if skipped > 0 {
		status = "canceled"
		runErr = fmt.Errorf("run canceled with %d objects undispatched: %w", skipped, ctx.Err())
	}
	c.recorder.RecordRun(status, summary.Duration, summary.Total, summary.Failed)

	level := slog.LevelInfo
	if summary.Failed > 0 || runErr != nil {
		level = slog.LevelWarn
	}
	logger.Log(workCtx, level, "run finished", "status", status, "summary", summary)
	return summary, runErr
}

// snapshot drains the intake listing so the run works on a fixed set of objects.
func (c *Coordinator) snapshot(ctx context.Context, req RunRequest) ([]types.ObjectRef, error) {
	var refs []types.ObjectRef
	for ref, err := range c.store.List(ctx, req.Intake) {
		if err != nil {
			return nil, err
		}
		if req.Prefix != "" && !strings.HasPrefix(ref.Key, req.Prefix) {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
