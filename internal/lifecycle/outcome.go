package lifecycle

import (
	"log/slog"
	"time"

	"github.com/tiercycle/tiercycle/pkg/types"
)

// Kind is the terminal state of one object in one run.
type Kind int

const (
	KindReplicated Kind = iota
	KindArchived
	KindFailed
)

func (k Kind) String() string {
	switch k {
	case KindReplicated:
		return "replicated"
	case KindArchived:
		return "archived"
	case KindFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Stage names the pipeline step an object failed (or warned) at.
type Stage string

const (
	StageReplicate     Stage = "replicate"
	StageStat          Stage = "stat"
	StageCompress      Stage = "compress"
	StageArchiveUpload Stage = "archive-upload"
	StageRetire        Stage = "retire"
)

// Outcome records what happened to one intake object.
//
// Failed outcomes carry the failing Stage and Cause. An Archived outcome with a
// Cause is a retirement warning: the archive copy exists but the backup copy could
// not be deleted.
type Outcome struct {
	Ref        types.ObjectRef
	Kind       Kind
	Stage      Stage
	Cause      error
	ArchiveKey string
	AgeDays    int
	Size       int64
	DryRun     bool
	Duration   time.Duration
}

// Succeeded reports whether the object reached Replicated or Archived.
func (o Outcome) Succeeded() bool {
	return o.Kind != KindFailed
}

// Warning reports whether an archived object left its backup copy behind.
func (o Outcome) Warning() bool {
	return o.Kind == KindArchived && o.Cause != nil
}

func (o Outcome) level() slog.Level {
	switch {
	case o.Kind == KindFailed:
		return slog.LevelError
	case o.Warning():
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func (o Outcome) attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("key", o.Ref.Key),
		slog.String("outcome", o.Kind.String()),
		slog.Int("age_days", o.AgeDays),
		slog.Int64("size", o.Size),
		slog.Int64("duration_ms", o.Duration.Milliseconds()),
	}
	if o.ArchiveKey != "" {
		attrs = append(attrs, slog.String("archive_key", o.ArchiveKey))
	}
	if o.Stage != "" {
		attrs = append(attrs, slog.String("stage", string(o.Stage)))
	}
	if o.Cause != nil {
		attrs = append(attrs, slog.String("error", o.Cause.Error()))
	}
	if o.DryRun {
		attrs = append(attrs, slog.Bool("dry_run", true))
	}
	return attrs
}

func failed(ref types.ObjectRef, stage Stage, cause error) Outcome {
	return Outcome{Ref: ref, Kind: KindFailed, Stage: stage, Cause: cause}
}
