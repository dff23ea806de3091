package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	ledgerOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creatoros",
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by outcome.",
		},
		[]string{"operation", "result"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creatoros",
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Duration of ledger operations including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation"},
	)

	ledgerCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creatoros",
			Subsystem: "ledger",
			Name:      "credits_total",
			Help:      "Absolute credits moved, by transaction kind.",
		},
		[]string{"kind"},
	)

	conflictRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creatoros",
			Subsystem: "ledger",
			Name:      "conflict_retries_total",
			Help:      "Read-check-write sequences re-run after a concurrent balance update.",
		},
		[]string{"operation"},
	)

	eventPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "creatoros",
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Ledger events that could not be delivered to the broker.",
		},
	)

	reconcileDrift = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "creatoros",
			Subsystem: "reconcile",
			Name:      "inconsistent_organizations",
			Help:      "Organizations whose cached balance disagreed with the ledger in the last run.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "creatoros",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "creatoros",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)
)

func init() {
	Registry.MustRegister(
		ledgerOperations,
		ledgerDuration,
		ledgerCredits,
		conflictRetries,
		eventPublishFailures,
		reconcileDrift,
		httpRequests,
		httpDuration,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

func RecordLedgerOperation(operation, result string, duration time.Duration) {
	ledgerOperations.WithLabelValues(operation, result).Inc()
	ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func RecordCredits(kind string, amount int64) {
	if amount < 0 {
		amount = -amount
	}
	ledgerCredits.WithLabelValues(kind).Add(float64(amount))
}

func RecordConflictRetry(operation string) {
	conflictRetries.WithLabelValues(operation).Inc()
}

func RecordEventPublishFailure() {
	eventPublishFailures.Inc()
}

func SetInconsistentOrganizations(n int) {
	reconcileDrift.Set(float64(n))
}

func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
