// Package metrics owns the Prometheus collectors exposed on /metrics.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests and CLI jobs.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/healthtrack/healthtrack/internal/model"
)

const namespace = "healthtrack"

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authRejections      *prometheus.CounterVec
	checkIns            *prometheus.CounterVec
	milestonesUnlocked  *prometheus.CounterVec
	milestonesClaimed   *prometheus.CounterVec
	streaksBroken       prometheus.Counter
	historyArchived     prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		authRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_rejections_total",
				Help:      "Total number of rejected bearer tokens",
			},
			[]string{"reason"},
		),
		checkIns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkins_total",
				Help:      "Check-ins by activity type and outcome",
			},
			[]string{"type", "outcome"},
		),
		milestonesUnlocked: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "milestones_unlocked_total",
				Help:      "Milestones unlocked by check-ins",
			},
			[]string{"type", "days"},
		),
		milestonesClaimed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "milestones_claimed_total",
				Help:      "Milestone rewards claimed",
			},
			[]string{"type", "days"},
		),
		streaksBroken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streaks_broken_total",
			Help:      "Stale streaks reset by the break job",
		}),
		historyArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_entries_archived_total",
			Help:      "History entries moved to the archive",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.authRejections,
		m.checkIns,
		m.milestonesUnlocked,
		m.milestonesClaimed,
		m.streaksBroken,
		m.historyArchived,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request. route should be the matched
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) AuthRejected(reason string) {
	if m == nil {
		return
	}
	m.authRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) CheckIn(t model.ActivityType, outcome string) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) MilestonesUnlocked(t model.ActivityType, unlocked []model.Milestone) {
	if m == nil {
		return
	}
	for _, ms := range unlocked {
		m.milestonesUnlocked.WithLabelValues(string(t), strconv.Itoa(ms.Days)).Inc()
	}
}

func (m *Metrics) MilestoneClaimed(t model.ActivityType, days int) {
	if m == nil {
		return
	}
	m.milestonesClaimed.WithLabelValues(string(t), strconv.Itoa(days)).Inc()
}

func (m *Metrics) StreaksBroken(n int) {
	if m == nil {
		return
	}
	m.streaksBroken.Add(float64(n))
}

func (m *Metrics) HistoryArchived(n int) {
	if m == nil {
		return
	}
	m.historyArchived.Add(float64(n))
}
