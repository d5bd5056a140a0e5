// Package metrics records per-request provider metrics around an LLM client.
package metrics

import "time"

// Recorder receives one observation per provider request.
type Recorder interface {
	// ObserveRequest records a finished request. errorType is empty on success.
	ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)

	// IncRetry counts a retried request.
	IncRetry(model, reason string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveRequest(_ string, _, _ int, _ bool, _ string, _ time.Duration) {}

func (n *NoopRecorder) IncRetry(_, _ string) {}
