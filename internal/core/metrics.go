package core

import "time"

// Outcome labels shared by the pipelines' metrics.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeRejected = "rejected"
)

// Metrics receives pipeline observations. The app wires a Prometheus implementation.
type Metrics interface {
	ObserveIngestion(outcome string, chunks int, took time.Duration)
	ObserveAnswer(outcome string, took time.Duration)
	ObserveModelCall(took time.Duration, err error)
}

// NopMetrics discards every observation.
type NopMetrics struct{}

func (NopMetrics) ObserveIngestion(string, int, time.Duration) {}
func (NopMetrics) ObserveAnswer(string, time.Duration)         {}
func (NopMetrics) ObserveModelCall(time.Duration, error)       {}
