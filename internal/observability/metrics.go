package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacer_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pacer_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// bid decisions per line item and result
	DecisionCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacer_decisions_total",
			Help: "Total bid decisions",
		},
		[]string{"line_item_id", "buying"},
	)

	// win/lose notifications per line item and outcome
	NotificationCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacer_notifications_total",
			Help: "Total auction outcome notifications",
		},
		[]string{"line_item_id", "outcome"},
	)

	// confirmed spend per line item
	SpendTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pacer_spend_total",
			Help: "Total confirmed spend per line item",
		},
		[]string{"line_item_id"},
	)

	// budget engaged on unresolved buys per line item
	EngagedBudget = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pacer_engaged_budget",
			Help: "Budget engaged on in-flight opportunities",
		},
		[]string{"line_item_id"},
	)

	// throttle rebalances per line item and timezone
	ThrottleEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pacer_throttle_events_total",
			Help: "Total throttle-triggered objective reductions",
		},
		[]string{"line_item_id", "timezone"},
	)

	// number of errors persisting spend checkpoints
	SpendPersistErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pacer_spend_persist_errors_total",
			Help: "Total spend persistence errors",
		},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		DecisionCount,
		NotificationCount,
		SpendTotal,
		EngagedBudget,
		ThrottleEvents,
		SpendPersistErrors,
	)
}
