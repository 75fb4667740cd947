// Package metrics records object store and document store activity.
//
// Components receive a Recorder through their options and default to
// NoopRecorder, so metrics are collected only when a real implementation such
// as PrometheusRecorder is injected.
package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultNotFound ResultLabel = "not_found"
	ResultError    ResultLabel = "error"
)

// Recorder defines observability hooks for store operations. Implementations
// may forward to Prometheus or any other backend.
type Recorder interface {
	ObserveStoreOperation(backend, op string, d time.Duration, result ResultLabel)
	AddBytes(backend, op string, n int64)
	IncPartialFailure(op string, failed int)
	IncEvent(eventType string, delivered bool)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStoreOperation(string, string, time.Duration, ResultLabel) {}
func (NoopRecorder) AddBytes(string, string, int64)                                  {}
func (NoopRecorder) IncPartialFailure(string, int)                                   {}
func (NoopRecorder) IncEvent(string, bool)                                           {}
