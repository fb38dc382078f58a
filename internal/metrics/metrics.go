package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medipals_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "status"},
	)

	// Ledger
	LedgerTransactions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medipals_ledger_transactions_total",
			Help: "Total number of recorded ledger transactions",
		},
		[]string{"kind"},
	)

	LedgerRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medipals_ledger_rejected_total",
			Help: "Total number of ledger writes rejected by the store",
		},
		[]string{"reason"}, // "insufficient_balance", "duplicate_payment", "already_paid"
	)

	// Payouts
	PayoutAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medipals_payout_attempts_total",
			Help: "Total number of payout attempts by final status",
		},
		[]string{"status"},
	)

	PayoutsReplayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medipals_payouts_replayed_total",
			Help: "Total number of unfinished payout attempts replayed by the reconciler",
		},
		[]string{"result"}, // "completed", "failed", "error"
	)

	// Payment processor
	ProcessorRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medipals_processor_request_duration_seconds",
			Help:    "Duration of payment processor calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medipals_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medipals_circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medipals_circuit_breaker_consecutive_failures",
			Help: "Number of consecutive failures seen by circuit breaker",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medipals_circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Notifications
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medipals_notifications_published_total",
			Help: "Total number of notifications pushed to subscribers",
		},
		[]string{"result"}, // "success", "failure"
	)
)

// RecordHTTPRequest observes request duration by method and status code
func RecordHTTPRequest(method string, status int, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, strconv.Itoa(status)).Observe(duration.Seconds())
}

// RecordProcessorCall observes a payment processor call
func RecordProcessorCall(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ProcessorRequestDuration.WithLabelValues(operation, status).Observe(duration.Seconds())
}
