package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the assistant.
type Metrics struct {
	registry *prometheus.Registry

	ChatRequests prometheus.Counter
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec
	ModelCalls   *prometheus.CounterVec
	StreamErrors *prometheus.CounterVec
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ChatRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atlas_chat_requests_total",
			Help: "Chat requests accepted.",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_tool_calls_total",
			Help: "Tool invocations by tool and status.",
		}, []string{"tool", "status"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "atlas_tool_duration_seconds",
			Help:    "Tool invocation latency.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"tool"}),
		ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_model_calls_total",
			Help: "Model backend calls by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		StreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "atlas_stream_errors_total",
			Help: "Chat streams that ended with an error frame.",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.ChatRequests, m.ToolCalls, m.ToolDuration, m.ModelCalls, m.StreamErrors,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTool records one tool invocation. Safe on a nil receiver.
func (m *Metrics) ObserveTool(tool, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.WithLabelValues(tool, status).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveModelCall records one model backend call. Safe on a nil receiver.
func (m *Metrics) ObserveModelCall(purpose string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ModelCalls.WithLabelValues(purpose, outcome).Inc()
}

// ObserveStreamError records an error frame. Safe on a nil receiver.
func (m *Metrics) ObserveStreamError(kind string) {
	if m == nil {
		return
	}
	m.StreamErrors.WithLabelValues(kind).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
