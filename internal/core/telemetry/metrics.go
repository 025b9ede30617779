package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine self-instrumentation, exposed on /metrics. These describe the
// alerting service itself, not the monitored resources.
var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_evaluation_cycles_total",
		Help: "Number of completed evaluation cycles.",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sentinel_evaluation_cycle_duration_seconds",
		Help:    "Wall time of one evaluation cycle.",
		Buckets: prometheus.DefBuckets,
	})

	PairsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_pairs_evaluated_total",
		Help: "Number of (resource, rule) pair evaluations.",
	})

	BreachesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_breaches_total",
		Help: "Breaching evaluations per rule.",
	}, []string{"rule_id"})

	AlertsRaisedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_alerts_raised_total",
		Help: "Alerts transitioned to active.",
	})

	AlertsResolvedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_alerts_resolved_total",
		Help: "Alerts transitioned to resolved.",
	})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_deliveries_total",
		Help: "Delivery attempts per channel and status.",
	}, []string{"channel", "status"})

	AuditAppendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_audit_appends_total",
		Help: "Audit appends per event type.",
	}, []string{"event_type"})

	SourceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_source_failures_total",
		Help: "Metric source fetch failures per provider.",
	}, []string{"provider"})
)
