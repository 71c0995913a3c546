package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics
// This replaces direct access to global Prometheus metrics with dependency injection
type MetricsRegistry interface {
	// HTTP Request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Engine metrics
	IncrementEngineRuns(status string)
	RecordEngineRunDuration(duration time.Duration)
	IncrementDecision(decision string)
	IncrementHooksCreated()
	IncrementRenderOutcome(outcome string)
	IncrementAdsScaled()

	// Gateway metrics
	IncrementGatewayRequests(operation, outcome string)
	RecordGatewayLatency(operation string, duration time.Duration)
	IncrementRateLimitWaits(accountID string)

	// Collaborator metrics
	IncrementNotifications(sink, outcome string)
	IncrementWebhookEvents(status string)
	IncrementAggregationRuns(status string)
}

// PrometheusRegistry implements MetricsRegistry using the existing global Prometheus metrics
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

// Engine metrics
func (r *PrometheusRegistry) IncrementEngineRuns(status string) {
	EngineRuns.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) RecordEngineRunDuration(duration time.Duration) {
	EngineRunDuration.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementDecision(decision string) {
	AdDecisions.WithLabelValues(decision).Inc()
}

func (r *PrometheusRegistry) IncrementHooksCreated() {
	HooksCreated.Inc()
}

func (r *PrometheusRegistry) IncrementRenderOutcome(outcome string) {
	RenderOutcomes.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) IncrementAdsScaled() {
	AdsScaled.Inc()
}

// Gateway metrics
func (r *PrometheusRegistry) IncrementGatewayRequests(operation, outcome string) {
	GatewayRequests.WithLabelValues(operation, outcome).Inc()
}

func (r *PrometheusRegistry) RecordGatewayLatency(operation string, duration time.Duration) {
	GatewayLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementRateLimitWaits(accountID string) {
	RateLimitWaits.WithLabelValues(accountID).Inc()
}

// Collaborator metrics
func (r *PrometheusRegistry) IncrementNotifications(sink, outcome string) {
	NotificationsSent.WithLabelValues(sink, outcome).Inc()
}

func (r *PrometheusRegistry) IncrementWebhookEvents(status string) {
	WebhookEvents.WithLabelValues(status).Inc()
}

func (r *PrometheusRegistry) IncrementAggregationRuns(status string) {
	AggregationRuns.WithLabelValues(status).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

// HTTP Request metrics
func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Engine metrics
func (r *NoOpRegistry) IncrementEngineRuns(status string)              {}
func (r *NoOpRegistry) RecordEngineRunDuration(duration time.Duration) {}
func (r *NoOpRegistry) IncrementDecision(decision string)              {}
func (r *NoOpRegistry) IncrementHooksCreated()                         {}
func (r *NoOpRegistry) IncrementRenderOutcome(outcome string)          {}
func (r *NoOpRegistry) IncrementAdsScaled()                            {}

// Gateway metrics
func (r *NoOpRegistry) IncrementGatewayRequests(operation, outcome string)            {}
func (r *NoOpRegistry) RecordGatewayLatency(operation string, duration time.Duration) {}
func (r *NoOpRegistry) IncrementRateLimitWaits(accountID string)                      {}

// Collaborator metrics
func (r *NoOpRegistry) IncrementNotifications(sink, outcome string) {}
func (r *NoOpRegistry) IncrementWebhookEvents(status string)        {}
func (r *NoOpRegistry) IncrementAggregationRuns(status string)      {}
