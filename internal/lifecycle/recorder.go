package lifecycle

import "time"

// Recorder receives pipeline measurements. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	RecordOutcome(kind, stage string, duration time.Duration, size int64)
	RecordRun(status string, duration time.Duration, total, failed int)
	AddInFlight(delta float64)
}

type nopRecorder struct{}

func (nopRecorder) RecordOutcome(string, string, time.Duration, int64) {}
func (nopRecorder) RecordRun(string, time.Duration, int, int)         {}
func (nopRecorder) AddInFlight(float64)                               {}
