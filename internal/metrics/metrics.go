// Package metrics exposes Prometheus instrumentation for the SLA
// tracker.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ItemsEvaluated counts work item evaluations across all passes.
	ItemsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slatrack_items_evaluated_total",
		Help: "Total number of work item evaluations.",
	})

	// EscalationsFired counts escalation notices successfully dispatched.
	EscalationsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slatrack_escalations_fired_total",
		Help: "Total number of escalation notices dispatched.",
	})

	// StateConflicts counts conditional state writes lost to a
	// concurrent writer.
	StateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slatrack_state_conflicts_total",
		Help: "Total number of SLA state writes lost to version conflicts.",
	})

	// EvaluationPassDuration tracks wall time of full evaluation passes.
	EvaluationPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "slatrack_evaluation_pass_duration_seconds",
		Help:    "Duration of full SLA evaluation passes.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	// ItemsByStatus gauges the current count of tracked items per
	// SLA status, refreshed after each pass.
	ItemsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "slatrack_items_by_status",
		Help: "Current number of tracked work items per SLA status.",
	}, []string{"status"})

	// NotificationFailures counts escalation deliveries that exhausted
	// their retries.
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slatrack_notification_failures_total",
		Help: "Total escalation deliveries that failed after retries.",
	}, []string{"channel"})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
