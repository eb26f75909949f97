// Package metrics exposes Prometheus collectors for the service. All methods
// are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	writes       *prometheus.CounterVec
	snapshots    *prometheus.CounterVec
	decodeErrors *prometheus.CounterVec
	activeStates prometheus.Gauge
	wsClients    prometheus.Gauge
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	exports      *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeefarm",
			Name:      "store_writes_total",
			Help:      "Store writes by kind, operation and result.",
		}, []string{"kind", "op", "result"}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeefarm",
			Name:      "snapshots_total",
			Help:      "Collection snapshots applied to owner state.",
		}, []string{"kind"}),
		decodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeefarm",
			Name:      "decode_errors_total",
			Help:      "Documents skipped because they failed to decode.",
		}, []string{"kind"}),
		activeStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coffeefarm",
			Name:      "active_states",
			Help:      "Owner states currently open.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "coffeefarm",
			Name:      "websocket_clients",
			Help:      "Connected websocket clients.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeefarm",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status.",
		}, []string{"method", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "coffeefarm",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "coffeefarm",
			Name:      "exports_total",
			Help:      "Report exports by format and result.",
		}, []string{"format", "result"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.writes, m.snapshots, m.decodeErrors, m.activeStates,
		m.wsClients, m.requests, m.latency, m.exports,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) Write(kind, op string, err error) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind, op, result(err)).Inc()
}

func (m *Metrics) Snapshot(kind string) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(kind).Inc()
}

func (m *Metrics) DecodeError(kind string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) StateOpened() {
	if m != nil {
		m.activeStates.Inc()
	}
}

func (m *Metrics) StateClosed() {
	if m != nil {
		m.activeStates.Dec()
	}
}

func (m *Metrics) ClientConnected() {
	if m != nil {
		m.wsClients.Inc()
	}
}

func (m *Metrics) ClientDisconnected() {
	if m != nil {
		m.wsClients.Dec()
	}
}

func (m *Metrics) Request(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) Export(format string, err error) {
	if m == nil {
		return
	}
	m.exports.WithLabelValues(format, result(err)).Inc()
}
