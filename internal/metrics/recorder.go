package metrics

import "time"

// Outcome of a cache operation on one entry.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeFallback Outcome = "fallback" // tool failure treated as a cold cache
	OutcomeSkipped  Outcome = "skipped"
)

// Observability hooks for the directory cache and the build pipeline.
type Recorder interface {
	ObserveRestore(entry string, d time.Duration, outcome Outcome)
	ObserveDump(entry string, d time.Duration, outcome Outcome)
	SetSlotBytes(namespace, key string, bytes int64)
	ObserveBuild(target string, d time.Duration, success bool)
}

// NoopRecorder discards all observations.
type NoopRecorder struct{}

func (NoopRecorder) ObserveRestore(string, time.Duration, Outcome) {}
func (NoopRecorder) ObserveDump(string, time.Duration, Outcome)    {}
func (NoopRecorder) SetSlotBytes(string, string, int64)            {}
func (NoopRecorder) ObserveBuild(string, time.Duration, bool)      {}
