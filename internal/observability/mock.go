package observability

import (
	"strings"
	"sync"
	"time"
)

// MockMetricsRegistry records counter increments in memory for assertions.
// Latency observations are ignored.
type MockMetricsRegistry struct {
	mu     sync.Mutex
	counts map[string]int
}

// Count returns how often the named metric was incremented with the given labels,
// e.g. Count("decision", "pause").
func (m *MockMetricsRegistry) Count(name string, labels ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key(name, labels)]
}

func (m *MockMetricsRegistry) inc(name string, labels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = make(map[string]int)
	}
	m.counts[key(name, labels)]++
}

func key(name string, labels []string) string {
	return name + "|" + strings.Join(labels, "|")
}

// HTTP Request metrics
func (m *MockMetricsRegistry) IncrementRequests(endpoint, method, status string) {
	m.inc("requests", endpoint, method, status)
}
func (m *MockMetricsRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}

// Engine metrics
func (m *MockMetricsRegistry) IncrementEngineRuns(status string)              { m.inc("engine_runs", status) }
func (m *MockMetricsRegistry) RecordEngineRunDuration(duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementDecision(decision string)              { m.inc("decision", decision) }
func (m *MockMetricsRegistry) IncrementHooksCreated()                         { m.inc("hooks_created") }
func (m *MockMetricsRegistry) IncrementRenderOutcome(outcome string)          { m.inc("render", outcome) }
func (m *MockMetricsRegistry) IncrementAdsScaled()                            { m.inc("ads_scaled") }

// Gateway metrics
func (m *MockMetricsRegistry) IncrementGatewayRequests(operation, outcome string) {
	m.inc("gateway", operation, outcome)
}
func (m *MockMetricsRegistry) RecordGatewayLatency(operation string, duration time.Duration) {}
func (m *MockMetricsRegistry) IncrementRateLimitWaits(accountID string) {
	m.inc("ratelimit_waits", accountID)
}

// Collaborator metrics
func (m *MockMetricsRegistry) IncrementNotifications(sink, outcome string) {
	m.inc("notifications", sink, outcome)
}
func (m *MockMetricsRegistry) IncrementWebhookEvents(status string)   { m.inc("webhook", status) }
func (m *MockMetricsRegistry) IncrementAggregationRuns(status string) { m.inc("aggregation", status) }
