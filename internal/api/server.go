package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/facebookgo/clock"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/logic"
	"github.com/patrickwarner/creativeloop/internal/middleware"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/reporting"
)

// AdStore is the record access the API exposes.
type AdStore interface {
	List(ctx context.Context, activeOnly bool) ([]*models.AdPerformance, error)
	Get(ctx context.Context, adID string) (*models.AdPerformance, error)
	Delete(ctx context.Context, adID string) error
}

// Runner runs one decision engine pass.
type Runner interface {
	Run(ctx context.Context) (logic.RunSummary, error)
}

// Refresher rebuilds the warehouse window tables.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// EventWriter completes render events.
type EventWriter interface {
	CompleteEvent(ctx context.Context, ev models.Event) error
}

// ReportFunc produces the performance summary.
type ReportFunc func(ctx context.Context) (*reporting.Summary, error)

// Server groups dependencies for HTTP handlers. Optional dependencies left nil
// make their endpoints answer 503.
type Server struct {
	Logger     *zap.Logger
	Ads        AdStore
	Engine     Runner
	Aggregator Refresher
	Events     EventWriter
	Report     ReportFunc
	Thresholds logic.Thresholds
	Metrics    observability.MetricsRegistry
	Config     config.Config
	Clock      clock.Clock
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, ads AdStore, engine Runner, aggregator Refresher, events EventWriter, report ReportFunc, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Server{
		Logger:     logger,
		Ads:        ads,
		Engine:     engine,
		Aggregator: aggregator,
		Events:     events,
		Report:     report,
		Thresholds: logic.ThresholdsFromConfig(cfg),
		Metrics:    metrics,
		Config:     cfg,
		Clock:      clock.New(),
	}
}

// Router registers every route on a new mux router.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.WithRequestLogger(s.Logger))

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/run", s.RunHandler).Methods(http.MethodPost)
	r.HandleFunc("/aggregate", s.AggregateHandler).Methods(http.MethodPost)
	r.HandleFunc("/webhooks/creatomate", s.CreatomateWebhookHandler).Methods(http.MethodPost)

	ads := r.PathPrefix("/api").Subrouter()
	ads.HandleFunc("/ads", s.ListAds).Methods(http.MethodGet)
	ads.HandleFunc("/ads/{id}", s.GetAd).Methods(http.MethodGet)
	ads.HandleFunc("/ads/{id}", s.DeleteAd).Methods(http.MethodDelete)
	ads.HandleFunc("/ads/{id}/evaluate", s.EvaluateAd).Methods(http.MethodGet)
	ads.HandleFunc("/report", s.ReportHandler).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(r, s.Config.ServiceName)
}

// observe records the request count and latency for one handled request.
func (s *Server) observe(endpoint, method, status string, start time.Time) {
	s.Metrics.IncrementRequests(endpoint, method, status)
	s.Metrics.RecordRequestLatency(endpoint, method, s.Clock.Now().Sub(start))
}

// helper function to write JSON response
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
