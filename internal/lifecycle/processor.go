package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tiercycle/tiercycle/internal/compress"
	"github.com/tiercycle/tiercycle/internal/retention"
	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/types"
)

// Plan names the destination containers and the policy for one run.
type Plan struct {
	Backup  string
	Archive string
	Policy  types.RetentionPolicy
}

// Processor drives a single intake object through replicate, evaluate, archive and retire.
type Processor struct {
	store      types.Store
	compressor *compress.Compressor
	logger     *slog.Logger
	dryRun     bool
}

// NewProcessor creates a Processor. A nil compressor uses the default gzip level.
func NewProcessor(store types.Store, compressor *compress.Compressor, logger *slog.Logger, dryRun bool) *Processor {
	if compressor == nil {
		compressor = compress.New(0)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:      store,
		compressor: compressor,
		logger:     logger.With("component", "processor"),
		dryRun:     dryRun,
	}
}

// Process runs src through the pipeline and always returns exactly one Outcome.
// Errors, including panics raised by the store, are captured into the Outcome.
func (p *Processor) Process(ctx context.Context, src types.ObjectRef, plan Plan, now time.Time) (out Outcome) {
	start := time.Now()
	stage := StageReplicate

	defer func() {
		if r := recover(); r != nil {
			cause := errors.NewError(errors.ErrCodePanicRecovered, fmt.Sprintf("panic: %v", r)).
				WithComponent("processor").
				WithOperation(string(stage))
			if stage == StageRetire {
				// the archive copy is already written
				out.Stage = StageRetire
				out.Cause = cause
			} else {
				out = failed(src, stage, cause)
			}
		}
		out.Duration = time.Since(start)
	}()

	if p.dryRun {
		return p.plan(ctx, src, plan, now)
	}

	backup := src.In(plan.Backup)
	if err := p.store.Copy(ctx, src, backup); err != nil {
		return failed(src, StageReplicate, err)
	}

	stage = StageStat
	meta, err := p.store.Stat(ctx, backup)
	if err != nil {
		return failed(src, StageStat, err)
	}

	out = Outcome{
		Ref:     src,
		Kind:    KindReplicated,
		AgeDays: retention.AgeDays(meta, now),
		Size:    meta.Size,
	}
	if !retention.ShouldArchive(meta, plan.Policy, now) {
		return out
	}

	stage = StageCompress
	data, err := p.store.Get(ctx, backup)
	if err != nil {
		return carryMeasure(failed(src, StageCompress, err), out)
	}
	gz, err := p.compressor.Compress(data)
	if err != nil {
		return carryMeasure(failed(src, StageCompress, err), out)
	}

	stage = StageArchiveUpload
	archive := types.ObjectRef{Container: plan.Archive, Key: compress.ArchiveKey(src.Key)}
	if err := p.store.Put(ctx, archive, gz, compress.ContentType); err != nil {
		return carryMeasure(failed(src, StageArchiveUpload, err), out)
	}
	p.logger.Debug("archive copy written",
		"key", src.Key,
		"archive_key", archive.Key,
		"content_type", meta.ContentType,
		"size", len(data),
		"compressed_size", len(gz))

	stage = StageRetire
	out.Kind = KindArchived
	out.ArchiveKey = archive.Key
	if err := p.store.Delete(ctx, backup); err != nil && !errors.IsNotFound(err) {
		out.Stage = StageRetire
		out.Cause = err
	}
	return out
}

// plan evaluates retention against the intake copy without writing anything.
func (p *Processor) plan(ctx context.Context, src types.ObjectRef, plan Plan, now time.Time) Outcome {
	meta, err := p.store.Stat(ctx, src)
	if err != nil {
		return failed(src, StageStat, err)
	}

	out := Outcome{
		Ref:     src,
		Kind:    KindReplicated,
		AgeDays: retention.AgeDays(meta, now),
		Size:    meta.Size,
		DryRun:  true,
	}
	steps := []string{"copy to " + plan.Backup}
	if retention.ShouldArchive(meta, plan.Policy, now) {
		out.Kind = KindArchived
		out.ArchiveKey = compress.ArchiveKey(src.Key)
		steps = append(steps, "gzip to "+plan.Archive+"/"+out.ArchiveKey, "delete from "+plan.Backup)
	}
	p.logger.Info("dry run plan", "key", src.Key, "age_days", out.AgeDays, "steps", steps)
	return out
}

func carryMeasure(f Outcome, measured Outcome) Outcome {
	f.AgeDays = measured.AgeDays
	f.Size = measured.Size
	return f
}
