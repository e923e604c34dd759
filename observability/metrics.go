// Package observability exposes Prometheus instruments for the memory service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/becomeliminal/nim-memory/memory"
)

// Metrics groups all Prometheus instruments used by the service.
// It implements memory.MetricsSink.
type Metrics struct {
	RecordsIndexed      *prometheus.CounterVec
	VectorErrors        *prometheus.CounterVec
	StoreErrors         *prometheus.CounterVec
	ContextItems        *prometheus.HistogramVec
	BuildContextLatency prometheus.Histogram
	ChatTurns           *prometheus.CounterVec
	WSMessages          *prometheus.CounterVec
}

var _ memory.MetricsSink = (*Metrics)(nil)

// NewMetrics registers the instruments with the default registry.
// Call it once per process.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers the instruments with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsIndexed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_indexed_total",
			Help:      "Records added to the semantic index by source.",
		}, []string{"source"}),
		VectorErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_errors_total",
			Help:      "Skipped vector writes and recalls by failing stage.",
		}, []string{"stage"}),
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Key-value store failures by operation.",
		}, []string{"op"}),
		ContextItems: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "context_items",
			Help:      "Memory turns placed in a built context by tier.",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8, 12},
		}, []string{"tier"}),
		BuildContextLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_context_latency_ms",
			Help:      "Latency to assemble a model context in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		}),
		ChatTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Chat turns by backend and outcome.",
		}, []string{"backend", "outcome"}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction.",
		}, []string{"direction"}),
	}
}

func (m *Metrics) RecordIndexed(source string) {
	m.RecordsIndexed.WithLabelValues(source).Inc()
}

func (m *Metrics) VectorError(stage string) {
	m.VectorErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) StoreError(op string) {
	m.StoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) ContextBuilt(vectorItems, kvItems int, elapsed time.Duration) {
	m.ContextItems.WithLabelValues("vector").Observe(float64(vectorItems))
	m.ContextItems.WithLabelValues("kv").Observe(float64(kvItems))
	m.BuildContextLatency.Observe(float64(elapsed.Milliseconds()))
}

// ChatTurn counts a completed or failed chat turn.
func (m *Metrics) ChatTurn(backend string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ChatTurns.WithLabelValues(backend, outcome).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor serves the metrics gathered by g.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
