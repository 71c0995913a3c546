package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_requests_total",
			Help: "Total API requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creativeloop_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// engine passes labelled by outcome
	EngineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_engine_runs_total",
			Help: "Total decision engine runs",
		},
		[]string{"status"},
	)

	// wall time of a full engine pass
	EngineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "creativeloop_engine_run_duration_seconds",
			Help:    "Duration of decision engine runs",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600},
		},
	)

	// per-ad decisions taken by the engine
	AdDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_ad_decisions_total",
			Help: "Total per-ad decisions",
		},
		[]string{"decision"},
	)

	// hook ads created
	HooksCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "creativeloop_hooks_created_total",
			Help: "Total hook variant ads created",
		},
	)

	// render waits labelled by outcome (success, failure, timeout, canceled)
	RenderOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_render_outcomes_total",
			Help: "Total render waits by outcome",
		},
		[]string{"outcome"},
	)

	// ad sets duplicated into scaling campaigns
	AdsScaled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "creativeloop_ads_scaled_total",
			Help: "Total ads duplicated into scaling campaigns",
		},
	)

	// Graph API calls labelled by operation and outcome
	GatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_gateway_requests_total",
			Help: "Total ad platform gateway requests",
		},
		[]string{"operation", "outcome"},
	)

	// Latency of Graph API calls
	GatewayLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "creativeloop_gateway_request_duration_seconds",
			Help:    "Duration of ad platform gateway requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// gateway calls delayed by the per-account token bucket
	RateLimitWaits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_ratelimit_waits_total",
			Help: "Total gateway calls that waited on the account rate limiter",
		},
		[]string{"account_id"},
	)

	// notifications labelled by sink and outcome
	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_notifications_total",
			Help: "Total notifications sent",
		},
		[]string{"sink", "outcome"},
	)

	// render webhook callbacks labelled by mapped status
	WebhookEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_webhook_events_total",
			Help: "Total render webhook callbacks",
		},
		[]string{"status"},
	)

	// metrics window rebuilds labelled by outcome
	AggregationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "creativeloop_aggregation_runs_total",
			Help: "Total warehouse window table rebuilds",
		},
		[]string{"status"},
	)
)

func init() {
	// register all metrics
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		EngineRuns,
		EngineRunDuration,
		AdDecisions,
		HooksCreated,
		RenderOutcomes,
		AdsScaled,
		GatewayRequests,
		GatewayLatency,
		RateLimitWaits,
		NotificationsSent,
		WebhookEvents,
		AggregationRuns,
	)
}
