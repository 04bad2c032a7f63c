// Package metrics exposes Prometheus counters and gauges for the monitor
// loop, grounded on the teacher's internal/monitoring/health/prometheus.go
// use of github.com/prometheus/client_golang.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clustersentinel/clustersentinel/internal/node"
)

// Registry bundles every metric the monitor loop updates per tick.
type Registry struct {
	reg *prometheus.Registry

	Ticks          prometheus.Counter
	EventsTotal    *prometheus.CounterVec
	RestartsTotal  *prometheus.CounterVec
	TickDuration   prometheus.Histogram
	OrchestratorUp prometheus.Gauge
}

// New builds a Registry with its own prometheus.Registry, matching the
// teacher's pattern of a dedicated registry per monitored subsystem rather
// than the global default registerer.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		Ticks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: "clustersentinel",
			Name:      "ticks_total",
			Help:      "Total number of monitor loop ticks executed.",
		}),
		EventsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "clustersentinel",
			Name:      "health_events_total",
			Help:      "Total HealthEvents emitted, by condition.",
		}, []string{"condition"}),
		RestartsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Namespace: "clustersentinel",
			Name:      "restarts_total",
			Help:      "Total restart procedures executed, by outcome.",
		}, []string{"outcome"}),
		TickDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Namespace: "clustersentinel",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of a single monitor loop tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		OrchestratorUp: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: "clustersentinel",
			Name:      "orchestrator_restart_in_progress",
			Help:      "1 while a restart procedure is executing, 0 otherwise.",
		}),
	}
	return r
}

// RecordEvent increments EventsTotal for the event's condition.
func (r *Registry) RecordEvent(event node.HealthEvent) {
	r.EventsTotal.WithLabelValues(string(event.Condition)).Inc()
}

// RecordRestart increments RestartsTotal for outcome.
func (r *Registry) RecordRestart(outcome node.RestartOutcome) {
	r.RestartsTotal.WithLabelValues(string(outcome)).Inc()
}

// Handler returns the /metrics HTTP handler for this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}
