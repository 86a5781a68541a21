// Package metrics exposes Prometheus counters and gauges for session views.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's collectors on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	activeViews     prometheus.Gauge
	transitions     *prometheus.CounterVec
	submissions     *prometheus.CounterVec
	flushesTotal    prometheus.Counter
	flushFailures   prometheus.Counter
	flushedEntries  prometheus.Counter
	spilledJobs     prometheus.Counter
	accessDenied    prometheus.Counter
	unresolvable    prometheus.Counter
	notificationsIn prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		activeViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vl_active_views",
			Help: "Number of running session views",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vl_session_transitions_total",
			Help: "Session phase transitions observed by views",
		}, []string{"from", "to"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vl_submissions_total",
			Help: "Viewer submissions by kind and outcome",
		}, []string{"kind", "outcome"}),
		flushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vl_flushes_total",
			Help: "Batch writes of buffered chat attempted",
		}),
		flushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vl_flush_failures_total",
			Help: "Batch writes rejected by the store",
		}),
		flushedEntries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vl_flushed_entries_total",
			Help: "Chat entries written by batch flushes",
		}),
		spilledJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vl_spilled_jobs_total",
			Help: "Failed teardown flushes handed to the worker queue",
		}),
		accessDenied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vl_access_denied_total",
			Help: "Session loads rejected by the access gate",
		}),
		unresolvable: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vl_schedule_unresolvable_total",
			Help: "Session loads whose schedule could not be resolved",
		}),
		notificationsIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vl_store_notifications_total",
			Help: "Store change notifications received",
		}),
	}
	registry.MustRegister(
		m.activeViews,
		m.transitions,
		m.submissions,
		m.flushesTotal,
		m.flushFailures,
		m.flushedEntries,
		m.spilledJobs,
		m.accessDenied,
		m.unresolvable,
		m.notificationsIn,
	)
	return m
}

// ViewStarted increments the active views gauge.
func (m *Metrics) ViewStarted() { m.activeViews.Inc() }

// ViewStopped decrements the active views gauge.
func (m *Metrics) ViewStopped() { m.activeViews.Dec() }

// Transition counts a phase change.
func (m *Metrics) Transition(from, to string) { m.transitions.WithLabelValues(from, to).Inc() }

// Submission counts a chat or response submission. outcome is "buffered",
// "written" or "rejected".
func (m *Metrics) Submission(kind, outcome string) {
	m.submissions.WithLabelValues(kind, outcome).Inc()
}

// Flushed records a batch write attempt.
func (m *Metrics) Flushed(entries int, err error) {
	m.flushesTotal.Inc()
	if err != nil {
		m.flushFailures.Inc()
		return
	}
	m.flushedEntries.Add(float64(entries))
}

// IncSpilled counts a teardown flush handed to the queue.
func (m *Metrics) IncSpilled() { m.spilledJobs.Inc() }

// IncAccessDenied counts a rejected token.
func (m *Metrics) IncAccessDenied() { m.accessDenied.Inc() }

// IncUnresolvable counts a webinar without a resolvable start.
func (m *Metrics) IncUnresolvable() { m.unresolvable.Inc() }

// IncNotifications counts a received store change notification.
func (m *Metrics) IncNotifications() { m.notificationsIn.Inc() }

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an http.Handler that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
