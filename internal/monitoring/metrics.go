package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ticketApprovals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "admission_ticket_approvals_total",
			Help: "Total number of tickets moved to approved",
		},
	)

	stockConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_stock_conflicts_total",
			Help: "Total VIP requests rejected because the location was sold out",
		},
		[]string{"event_id", "location"},
	)

	invariantViolations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_invariant_violations_total",
			Help: "Ledger writes that would have broken the sold-count bounds",
		},
		[]string{"component"},
	)

	validations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_validations_total",
			Help: "Door validation attempts by outcome",
		},
		[]string{"outcome"},
	)

	webhookNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_webhook_notifications_total",
			Help: "Provider payment notifications by outcome",
		},
		[]string{"outcome"},
	)

	sweepTickets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_sweep_tickets_total",
			Help: "Tickets handled by the archival sweep by outcome",
		},
		[]string{"outcome"},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "admission_sweep_duration_seconds",
			Help:    "Duration of a full sweep pass",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func TrackApproval() {
	ticketApprovals.Inc()
}

func TrackStockConflict(eventID, location string) {
	stockConflicts.WithLabelValues(eventID, location).Inc()
}

func TrackInvariantViolation(component string) {
	invariantViolations.WithLabelValues(component).Inc()
}

func TrackValidation(outcome string) {
	validations.WithLabelValues(outcome).Inc()
}

func TrackWebhook(outcome string) {
	webhookNotifications.WithLabelValues(outcome).Inc()
}

func TrackSweep(archived, skipped, failed int, seconds float64) {
	sweepTickets.WithLabelValues("archived").Add(float64(archived))
	sweepTickets.WithLabelValues("skipped").Add(float64(skipped))
	sweepTickets.WithLabelValues("failed").Add(float64(failed))
	sweepDuration.Observe(seconds)
}

// Validations exposes the door-scan outcome counter so callers can read it
// back (tests, mostly).
func Validations() *prometheus.CounterVec {
	return validations
}

// Handler exposes the registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.Handler()
}
