package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/catalyst-dev/liveops/internal/core"
)

// Metrics owns the process registry and the live-operations gauges.
// It implements core.Monitor so the domain layer can signal lifecycle
// transitions without importing this package.
type Metrics struct {
	registry *prometheus.Registry

	watchSessions   prometheus.Gauge
	watchReconnects prometheus.Counter
	logStreams      prometheus.Gauge
	shellSessions   prometheus.Gauge
}

var _ core.Monitor = (*Metrics)(nil)

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		watchSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveops_watch_sessions",
			Help: "Watch sessions currently open.",
		}),
		watchReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "liveops_watch_reconnects_total",
			Help: "Watch reconnection attempts.",
		}),
		logStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveops_log_streams",
			Help: "Log follow streams currently open.",
		}),
		shellSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "liveops_shell_sessions",
			Help: "Interactive shell sessions currently open.",
		}),
	}
	registry.MustRegister(m.watchSessions, m.watchReconnects, m.logStreams, m.shellSessions)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) WatchSessionOpened() { m.watchSessions.Inc() }
func (m *Metrics) WatchSessionClosed() { m.watchSessions.Dec() }
func (m *Metrics) WatchReconnect()     { m.watchReconnects.Inc() }
func (m *Metrics) LogStreamOpened()    { m.logStreams.Inc() }
func (m *Metrics) LogStreamClosed()    { m.logStreams.Dec() }
func (m *Metrics) ShellSessionOpened() { m.shellSessions.Inc() }
func (m *Metrics) ShellSessionClosed() { m.shellSessions.Dec() }
