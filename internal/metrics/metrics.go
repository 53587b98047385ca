// Package metrics holds the Prometheus collectors exported by btclassic.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "btclassic"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	ActiveListeners   prometheus.Gauge
	ConnectAttempts   *prometheus.CounterVec // result: ok, failed
	BytesReceived     prometheus.Counter
	BytesWritten      prometheus.Counter
	MethodCalls       *prometheus.CounterVec // method, outcome: ok, not_implemented, error
	EventsDropped     *prometheus.CounterVec // source: session, scanner
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveConnections: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Open RFCOMM connections.",
		}),
		ActiveListeners: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_listeners",
			Help:      "Running polling workers.",
		}),
		ConnectAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connection attempts by result.",
		}, []string{"result"}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "received_bytes_total",
			Help:      "Bytes appended to receive buffers.",
		}),
		BytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_bytes_total",
			Help:      "Bytes written to RFCOMM sockets.",
		}),
		MethodCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "method_calls_total",
			Help:      "Method channel calls by method and outcome.",
		}, []string{"method", "outcome"}),
		EventsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events discarded because the host did not read them in time.",
		}, []string{"source"}),
	}
}

func (m *Metrics) ConnectResult(ok bool) {
	if m == nil {
		return
	}
	result := "failed"
	if ok {
		result = "ok"
	}
	m.ConnectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) SetConnections(n int) {
	if m != nil {
		m.ActiveConnections.Set(float64(n))
	}
}

func (m *Metrics) SetListeners(n int) {
	if m != nil {
		m.ActiveListeners.Set(float64(n))
	}
}

func (m *Metrics) Received(n int) {
	if m != nil {
		m.BytesReceived.Add(float64(n))
	}
}

func (m *Metrics) Written(n int) {
	if m != nil {
		m.BytesWritten.Add(float64(n))
	}
}

func (m *Metrics) Call(method, outcome string) {
	if m != nil {
		m.MethodCalls.WithLabelValues(method, outcome).Inc()
	}
}

func (m *Metrics) EventDropped(source string) {
	if m != nil {
		m.EventsDropped.WithLabelValues(source).Inc()
	}
}
