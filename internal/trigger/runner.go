package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/tiercycle/tiercycle/internal/lock"
	"github.com/tiercycle/tiercycle/pkg/errors"
)

// Trigger sources, used as metric labels.
const (
	SourceStartup = "startup"
	SourceCron    = "cron"
	SourceNATS    = "nats"
)

// RunFunc performs one pipeline run.
type RunFunc func(ctx context.Context) error

// Recorder receives trigger and lock counts. *metrics.Collector implements it.
type Recorder interface {
	RecordTrigger(source string)
	RecordLock(result string)
}

// Runner funnels triggers from every source into one goroutine, so runs never overlap
// inside a process. Triggers arriving while a run is pending are coalesced into it.
// The lock keeps runs from overlapping across processes.
type Runner struct {
	run      RunFunc
	locker   lock.Locker
	recorder Recorder
	logger   *slog.Logger
	requests chan string
}

// NewRunner creates a Runner. recorder may be nil.
func NewRunner(run RunFunc, locker lock.Locker, recorder Recorder, logger *slog.Logger) *Runner {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		run:      run,
		locker:   locker,
		recorder: recorder,
		logger:   logger.With("component", "trigger-runner"),
		requests: make(chan string, 1),
	}
}

// Trigger requests a run without blocking. It returns false when a run is already
// pending and this request was folded into it.
func (r *Runner) Trigger(source string) bool {
	r.recorder.RecordTrigger(source)
	select {
	case r.requests <- source:
		return true
	default:
		r.logger.Debug("run already pending, trigger coalesced", "source", source)
		return false
	}
}

// Serve executes requested runs one at a time until ctx is done.
func (r *Runner) Serve(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case source := <-r.requests:
			_ = r.RunOnce(ctx, source)
		}
	}
}

// RunOnce takes the lock and runs the pipeline. A held lock is not an error for the
// caller's purposes; it is logged and reported as LOCK_HELD.
func (r *Runner) RunOnce(ctx context.Context, source string) error {
	logger := r.logger.With("source", source)

	lease, err := r.locker.TryAcquire(ctx)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrCodeLockHeld {
			r.recorder.RecordLock("held")
			logger.Info("skipping run, lock held elsewhere")
		} else {
			r.recorder.RecordLock("error")
			logger.Error("acquiring run lock failed", "error", err)
		}
		return err
	}
	r.recorder.RecordLock("acquired")
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			logger.Warn("releasing run lock failed", "error", err)
		}
	}()

	start := time.Now()
	err = r.run(ctx)
	if err != nil {
		logger.Error("triggered run failed", "duration", time.Since(start), "error", err)
		return err
	}
	logger.Info("triggered run finished", "duration", time.Since(start))
	return nil
}

type nopRecorder struct{}

func (nopRecorder) RecordTrigger(string) {}
func (nopRecorder) RecordLock(string)    {}
