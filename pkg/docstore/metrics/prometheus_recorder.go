package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docstore"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	opDuration      *prom.HistogramVec
	opResults       *prom.CounterVec
	bytes           *prom.CounterVec
	partialFailures *prom.CounterVec
	events          *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg. A
// nil registry gets a fresh one.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		opDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of object store operations",
			Buckets:   prom.DefBuckets,
		}, []string{"backend", "op"}),
		opResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Object store operations by result",
		}, []string{"backend", "op", "result"}),
		bytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "store_bytes_total",
			Help:      "Bytes written to or read from the object store",
		}, []string{"backend", "op"}),
		partialFailures: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "partial_failure_items_total",
			Help:      "Items that failed inside best-effort batches",
		}, []string{"op"}),
		events: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Published events by type and delivery status",
		}, []string{"type", "delivered"}),
	}
	reg.MustRegister(pr.opDuration, pr.opResults, pr.bytes, pr.partialFailures, pr.events)
	return pr
}

func (p *PrometheusRecorder) ObserveStoreOperation(backend, op string, d time.Duration, result ResultLabel) {
	if p == nil {
		return
	}
	p.opDuration.WithLabelValues(backend, op).Observe(d.Seconds())
	p.opResults.WithLabelValues(backend, op, string(result)).Inc()
}

func (p *PrometheusRecorder) AddBytes(backend, op string, n int64) {
	if p == nil || n <= 0 {
		return
	}
	p.bytes.WithLabelValues(backend, op).Add(float64(n))
}

func (p *PrometheusRecorder) IncPartialFailure(op string, failed int) {
	if p == nil || failed <= 0 {
		return
	}
	p.partialFailures.WithLabelValues(op).Add(float64(failed))
}

func (p *PrometheusRecorder) IncEvent(eventType string, delivered bool) {
	if p == nil {
		return
	}
	status := "false"
	if delivered {
		status = "true"
	}
	p.events.WithLabelValues(eventType, status).Inc()
}

// HTTPHandler returns an http.Handler that serves the metrics of reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
