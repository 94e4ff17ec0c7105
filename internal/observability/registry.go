package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Pacing decision metrics
	IncrementDecisions(lineItemID, buying string)
	IncrementNotifications(lineItemID, outcome string)
	IncrementThrottleEvents(lineItemID, timezone string)

	// Spend tracking metrics
	SetSpendTotal(lineItemID string, amount float64)
	SetEngagedBudget(lineItemID string, amount float64)
	IncrementSpendPersistErrors()
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

// HTTP Request metrics
func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

// Pacing decision metrics
func (r *PrometheusRegistry) IncrementDecisions(lineItemID, buying string) {
	DecisionCount.WithLabelValues(lineItemID, buying).Inc()
}

func (r *PrometheusRegistry) IncrementNotifications(lineItemID, outcome string) {
	NotificationCount.WithLabelValues(lineItemID, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementThrottleEvents(lineItemID, timezone string) {
	ThrottleEvents.WithLabelValues(lineItemID, timezone).Inc()
}

// Spend tracking metrics
func (r *PrometheusRegistry) SetSpendTotal(lineItemID string, amount float64) {
	SpendTotal.WithLabelValues(lineItemID).Set(amount)
}

func (r *PrometheusRegistry) SetEngagedBudget(lineItemID string, amount float64) {
	EngagedBudget.WithLabelValues(lineItemID).Set(amount)
}

func (r *PrometheusRegistry) IncrementSpendPersistErrors() {
	SpendPersistErrors.Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementDecisions(lineItemID, buying string)                         {}
func (r *NoOpRegistry) IncrementNotifications(lineItemID, outcome string)                    {}
func (r *NoOpRegistry) IncrementThrottleEvents(lineItemID, timezone string)                  {}
func (r *NoOpRegistry) SetSpendTotal(lineItemID string, amount float64)                      {}
func (r *NoOpRegistry) SetEngagedBudget(lineItemID string, amount float64)                   {}
func (r *NoOpRegistry) IncrementSpendPersistErrors()                                         {}
