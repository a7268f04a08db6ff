package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the counters exported on /metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	signups          *prometheus.CounterVec
	reports          *prometheus.CounterVec
	reconciled       *prometheus.CounterVec
	seasonOps        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Bracket provider requests by operation and outcome.",
		}, []string{"op", "outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "league",
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Bracket provider request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "signups_total",
			Help:      "Signups by branch (created, joined, rollover).",
		}, []string{"branch"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "match_reports_total",
			Help:      "Match reports by resulting status.",
		}, []string{"status"}),
		reconciled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "reconciled_reports_total",
			Help:      "Reports handled by the reconciler by outcome.",
		}, []string{"outcome"}),
		seasonOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "league",
			Name:      "season_division_ops_total",
			Help:      "Per-division season operations by kind and outcome.",
		}, []string{"op", "outcome"}),
	}
	reg.MustRegister(
		m.providerRequests,
		m.providerLatency,
		m.signups,
		m.reports,
		m.reconciled,
		m.seasonOps,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ObserveProvider(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.providerRequests.WithLabelValues(op, outcome).Inc()
	m.providerLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Signup(branch string) {
	if m == nil {
		return
	}
	m.signups.WithLabelValues(branch).Inc()
}

func (m *Metrics) Report(status string) {
	if m == nil {
		return
	}
	m.reports.WithLabelValues(status).Inc()
}

func (m *Metrics) Reconciled(outcome string) {
	if m == nil {
		return
	}
	m.reconciled.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SeasonOp(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.seasonOps.WithLabelValues(op, outcome).Inc()
}
