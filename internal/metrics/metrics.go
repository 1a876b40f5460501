// Package metrics holds the prometheus collectors of the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "detectbench"

var (
	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of live message bus connections",
		},
	)

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Inbound bus messages by type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: relayed, unbound, unknown, malformed
	)

	deliveriesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_dropped_total",
			Help:      "Per-recipient deliveries lost to a closed or full peer",
		},
		[]string{"type"},
	)

	signalKinds = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signal_payloads_total",
			Help:      "Relayed signal payloads by kind",
		},
		[]string{"kind"}, // offer, answer, candidate, unknown
	)

	latencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "latency_milliseconds",
			Help:      "Observed frame latency by stage",
			Buckets:   []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600, 3200},
		},
		[]string{"series"}, // e2e, server, network
	)

	benchRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bench_runs_total",
			Help:      "Benchmark runs by outcome",
		},
		[]string{"outcome"}, // started, finished, superseded, persist_error
	)

	inferBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "infer_bytes_total",
			Help:      "Bytes moved through the inference proxy",
		},
		[]string{"direction"}, // up, down
	)
)

var allMetrics = []prometheus.Collector{
	connectionsActive,
	messagesTotal,
	deliveriesDropped,
	signalKinds,
	latencyMs,
	benchRunsTotal,
	inferBytesTotal,
}

// NewRegistry returns a registry with all relay collectors plus runtime collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	for _, c := range allMetrics {
		reg.MustRegister(c)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves reg in the prometheus text format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ConnectionOpened() { connectionsActive.Inc() }
func ConnectionClosed() { connectionsActive.Dec() }

func RecordMessage(msgType, outcome string) {
	messagesTotal.WithLabelValues(msgType, outcome).Inc()
}

func RecordDropped(msgType string, n int) {
	if n > 0 {
		deliveriesDropped.WithLabelValues(msgType).Add(float64(n))
	}
}

func RecordSignalKind(kind string) {
	signalKinds.WithLabelValues(kind).Inc()
}

func RecordLatency(series string, ms float64) {
	latencyMs.WithLabelValues(series).Observe(ms)
}

func RecordBenchRun(outcome string) {
	benchRunsTotal.WithLabelValues(outcome).Inc()
}

func RecordInferBytes(direction string, n int) {
	inferBytesTotal.WithLabelValues(direction).Add(float64(n))
}
