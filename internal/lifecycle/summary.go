package lifecycle

import (
	"log/slog"
	"time"

	"github.com/tiercycle/tiercycle/pkg/types"
)

// Failure is one failed (or warned) object in a BatchSummary.
type Failure struct {
	Ref   types.ObjectRef
	Stage Stage
	Cause error
}

// BatchSummary aggregates the outcomes of one run. Succeeded counts both
// Replicated and Archived objects; Archived is a subset of Succeeded.
type BatchSummary struct {
	RunID     string
	Total     int
	Succeeded int
	Archived  int
	Failed    int
	Duration  time.Duration
	Failures  []Failure
	Warnings  []Failure
}

func (s *BatchSummary) add(o Outcome) {
	s.Total++
	switch o.Kind {
	case KindFailed:
		s.Failed++
		s.Failures = append(s.Failures, Failure{Ref: o.Ref, Stage: o.Stage, Cause: o.Cause})
	case KindArchived:
		s.Succeeded++
		s.Archived++
		if o.Warning() {
			s.Warnings = append(s.Warnings, Failure{Ref: o.Ref, Stage: o.Stage, Cause: o.Cause})
		}
	default:
		s.Succeeded++
	}
}

// LogValue implements slog.LogValuer.
func (s BatchSummary) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("run_id", s.RunID),
		slog.Int("total", s.Total),
		slog.Int("succeeded", s.Succeeded),
		slog.Int("archived", s.Archived),
		slog.Int("failed", s.Failed),
		slog.Int("warnings", len(s.Warnings)),
		slog.Int64("duration_ms", s.Duration.Milliseconds()),
	)
}
