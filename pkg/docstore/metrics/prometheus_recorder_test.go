package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.ObserveStoreOperation("memory", "get", 15*time.Millisecond, ResultSuccess)
	pr.ObserveStoreOperation("memory", "get", 2*time.Millisecond, ResultNotFound)
	pr.AddBytes("memory", "put", 128)
	pr.IncPartialFailure("delete_many", 2)
	pr.IncEvent("document.saved", true)

	assert.Equal(t, float64(1), testutil.ToFloat64(pr.opResults.WithLabelValues("memory", "get", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pr.opResults.WithLabelValues("memory", "get", "not_found")))
	assert.Equal(t, float64(128), testutil.ToFloat64(pr.bytes.WithLabelValues("memory", "put")))
	assert.Equal(t, float64(2), testutil.ToFloat64(pr.partialFailures.WithLabelValues("delete_many")))
	assert.Equal(t, float64(1), testutil.ToFloat64(pr.events.WithLabelValues("document.saved", "true")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestPrometheusRecorderIgnoresEmptyCounts(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.AddBytes("s3", "get", 0)
	pr.IncPartialFailure("sparse_fetch", 0)

	assert.Equal(t, 0, testutil.CollectAndCount(pr.bytes))
	assert.Equal(t, 0, testutil.CollectAndCount(pr.partialFailures))
}

func TestNilPrometheusRecorder(t *testing.T) {
	var pr *PrometheusRecorder
	assert.NotPanics(t, func() {
		pr.ObserveStoreOperation("s3", "put", time.Second, ResultError)
		pr.AddBytes("s3", "put", 10)
		pr.IncPartialFailure("delete_many", 1)
		pr.IncEvent("artifact.deleted", false)
	})
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	assert.NotPanics(t, func() {
		r.ObserveStoreOperation("fs", "list", time.Millisecond, ResultSuccess)
		r.IncEvent("host.notification", true)
	})
}
