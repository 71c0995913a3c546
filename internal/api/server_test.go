package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/logic"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/reporting"
	"github.com/patrickwarner/creativeloop/internal/token"
)

type fakeRunner struct {
	summary logic.RunSummary
	err     error
	calls   int
}

func (f *fakeRunner) Run(context.Context) (logic.RunSummary, error) {
	f.calls++
	return f.summary, f.err
}

type fakeRefresher struct{ err error }

func (f fakeRefresher) Refresh(context.Context) error { return f.err }

func setupTestRedis(t *testing.T) *db.RedisStore {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)
	store := &db.RedisStore{
		Client:   redis.NewClient(&redis.Options{Addr: s.Addr()}),
		Ctx:      context.Background(),
		EventTTL: time.Hour,
	}
	t.Cleanup(store.Close)
	return store
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	ads     *db.MemoryStore
	events  *db.RedisStore
	runner  *fakeRunner
	metrics *observability.MockMetricsRegistry
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.Config{
		ServiceName:         "creativeloop-test",
		SpendThreshold:      40,
		PauseROIThreshold:   1.0,
		HookROIThreshold:    1.3,
		ScalingROIThreshold: 1.5,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	env := &testEnv{
		ads:     db.NewMemoryStore(),
		events:  setupTestRedis(t),
		runner:  &fakeRunner{summary: logic.RunSummary{RunID: "run-1", Processed: 2, Decisions: map[logic.Decision]int{logic.DecisionHold: 2}}},
		metrics: &observability.MockMetricsRegistry{},
	}
	report := func(context.Context) (*reporting.Summary, error) {
		return &reporting.Summary{TotalAds: 3, Phases: map[models.Phase]int64{models.PhasePaused: 3}}, nil
	}
	env.srv = NewServer(zaptest.NewLogger(t), env.ads, env.runner, fakeRefresher{}, env.events, report, env.metrics, cfg)
	env.handler = env.srv.Router()
	return env
}

func (e *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func seedAd(t *testing.T, store *db.MemoryStore, id string, roi float64, lc models.Lifecycle) {
	t.Helper()
	ad := &models.AdPerformance{FBAdID: id, AdName: "Ad " + id, Lifecycle: lc}
	ad.PerformanceMetrics.FB.Lifetime = models.WindowMetrics{Spend: 60, ROI: roi}
	ad.PerformanceMetrics.FB.Last3Days = models.WindowMetrics{ROI: roi}
	require.NoError(t, store.Save(context.Background(), ad))
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, 1, env.metrics.Count("requests", "health", "GET", "200"))
}

func TestRunHandler(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/run", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var summary logic.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 2, summary.Decisions[logic.DecisionHold])
	assert.Equal(t, 1, env.runner.calls)
}

func TestRunHandler_LockHeld(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = fmt.Errorf("acquire run lock: %w", db.ErrLockHeld)
	rec := env.do(http.MethodPost, "/run", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRunHandler_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = errors.New("ad a1: forced failure")
	rec := env.do(http.MethodPost, "/run", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "forced failure")
	assert.Equal(t, 1, env.metrics.Count("requests", "run", "POST", "500"))
}

func TestRunHandler_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/run", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, env.runner.calls)
}

func TestAggregateHandler(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/aggregate", "").Code)

	env.srv.Aggregator = fakeRefresher{err: errors.New("warehouse down")}
	assert.Equal(t, http.StatusInternalServerError, env.do(http.MethodPost, "/aggregate", "").Code)
}

func TestWebhook_CompletesEvent(t *testing.T) {
	env := newTestEnv(t)
	body := `{"id":"r1","status":"succeeded","url":"https://cdn.example.com/r1.mp4",
		"metadata":"{\"baseAdName\":\"Ad One\",\"hookName\":\"question\",\"fbAdId\":\"ad1\"}"}`

	rec := env.do(http.MethodPost, "/webhooks/creatomate", body)
	require.Equal(t, http.StatusNoContent, rec.Code)

	ev, err := env.events.GetEvent(context.Background(), models.RenderEventKey("r1"))
	require.NoError(t, err)
	assert.Equal(t, models.EventSuccess, ev.Status)
	assert.Equal(t, "https://cdn.example.com/r1.mp4", ev.Payload.URL)
	assert.Equal(t, "question", ev.Payload.HookName)
	assert.Equal(t, "ad1", ev.Payload.FBAdID)
	assert.Equal(t, 1, env.metrics.Count("webhook", string(models.EventSuccess)))
}

func TestWebhook_Failure(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/webhooks/creatomate", `{"id":"r2","status":"failed","error_message":"bad source"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)

	ev, err := env.events.GetEvent(context.Background(), models.RenderEventKey("r2"))
	require.NoError(t, err)
	assert.Equal(t, models.EventFailure, ev.Status)
	assert.Equal(t, "bad source", ev.Payload.Error)
}

func TestWebhook_IgnoresInProgress(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/webhooks/creatomate", `{"id":"r3","status":"rendering"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	_, err := env.events.GetEvent(context.Background(), models.RenderEventKey("r3"))
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Equal(t, 1, env.metrics.Count("webhook", "ignored"))
}

func TestWebhook_InvalidPayload(t *testing.T) {
	env := newTestEnv(t)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/webhooks/creatomate", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/webhooks/creatomate", `{"status":"succeeded"}`).Code)
}

func TestWebhook_Token(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) { c.WebhookToken = "s3cret" })
	body := `{"id":"r4","status":"succeeded","url":"https://cdn.example.com/r4.mp4"}`

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/webhooks/creatomate", body).Code)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/webhooks/creatomate?token=wrong", body).Code)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/webhooks/creatomate?token=s3cret", body).Code)
}

func TestWebhook_Signature(t *testing.T) {
	env := newTestEnv(t, func(c *config.Config) {
		c.WebhookSigningSecret = "signing"
		c.WebhookSignatureTTL = time.Hour
	})
	body := `{"id":"r5","status":"succeeded","url":"https://cdn.example.com/r5.mp4",
		"metadata":"{\"baseAdName\":\"Ad One\",\"hookName\":\"question\",\"fbAdId\":\"ad1\"}"}`

	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/webhooks/creatomate", body).Code)

	other, err := token.Generate("ad2", "question", time.Now(), []byte("signing"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, env.do(http.MethodPost, "/webhooks/creatomate?sig="+other, body).Code)

	sig, err := token.Generate("ad1", "question", time.Now(), []byte("signing"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, env.do(http.MethodPost, "/webhooks/creatomate?sig="+sig, body).Code)
	assert.Equal(t, 2, env.metrics.Count("webhook", "unauthorized"))
}

func TestListAds(t *testing.T) {
	env := newTestEnv(t)
	seedAd(t, env.ads, "a1", 1.4, models.Lifecycle{})
	seedAd(t, env.ads, "a2", 0.5, models.Lifecycle{Activity: models.ActivityPaused})

	var all []models.AdPerformance
	rec := env.do(http.MethodGet, "/api/ads", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)
	assert.Contains(t, rec.Body.String(), `"fbIsActive":false`)

	var active []models.AdPerformance
	rec = env.do(http.MethodGet, "/api/ads?active=true", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &active))
	require.Len(t, active, 1)
	assert.Equal(t, "a1", active[0].FBAdID)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/ads?active=maybe", "").Code)
}

func TestListAds_Empty(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/ads", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestGetAndDeleteAd(t *testing.T) {
	env := newTestEnv(t)
	seedAd(t, env.ads, "a1", 1.4, models.Lifecycle{Hooks: models.HookDone})

	rec := env.do(http.MethodGet, "/api/ads/a1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ad models.AdPerformance
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ad))
	assert.Equal(t, models.HookDone, ad.Lifecycle.Hooks)

	assert.Equal(t, http.StatusNoContent, env.do(http.MethodDelete, "/api/ads/a1", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/ads/a1", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodDelete, "/api/ads/a1", "").Code)
}

func TestEvaluateAd(t *testing.T) {
	env := newTestEnv(t)
	seedAd(t, env.ads, "a1", 1.6, models.Lifecycle{})

	rec := env.do(http.MethodGet, "/api/ads/a1/evaluate", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		Phase models.Phase `json:"phase"`
		Plan  logic.Plan   `json:"plan"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, models.PhaseActiveUnevaluated, out.Phase)
	assert.Equal(t, logic.DecisionGrow, out.Plan.Decision)
	assert.True(t, out.Plan.CreateHooks)
	assert.True(t, out.Plan.Scale)

	// evaluation never writes
	stored, err := env.ads.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, models.Lifecycle{}, stored.Lifecycle)
}

func TestReportHandler(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/report", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"PAUSED":3`)

	env.srv.Report = nil
	assert.Equal(t, http.StatusServiceUnavailable, env.do(http.MethodGet, "/api/report", "").Code)
}
