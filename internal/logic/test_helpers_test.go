package logic

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/facebookgo/clock"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/creativeloop/internal/analytics"
	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/platform"
	"github.com/patrickwarner/creativeloop/internal/render"
)

// setupTestRedis spins up an in-memory Redis and returns an event store on it.
func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *db.RedisStore) {
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
	return s, store
}

// fakeGateway records every platform call and hands out sequential ids.
type fakeGateway struct {
	mu        sync.Mutex
	seq       int
	calls     []string
	statuses  map[string]platform.AdSetStatus
	budgets   map[string]int64
	starts    map[string]time.Time
	campaigns map[string]string
	adSets    []platform.AdSetSpec
	creatives []platform.CreativeSpec
	ads       []platform.AdSpec
	noAds     bool
	failOn    string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		statuses:  map[string]platform.AdSetStatus{},
		budgets:   map[string]int64{},
		starts:    map[string]time.Time{},
		campaigns: map[string]string{},
	}
}

func (g *fakeGateway) record(op string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, op)
	if g.failOn == op {
		return "", &platform.APIError{StatusCode: 400, Message: "forced failure on " + op}
	}
	g.seq++
	return fmt.Sprintf("%s-%d", op, g.seq), nil
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *fakeGateway) AccountID() string { return "act1" }

func (g *fakeGateway) CreateAdSet(_ context.Context, spec platform.AdSetSpec) (string, error) {
	id, err := g.record("adset")
	if err == nil {
		g.mu.Lock()
		g.adSets = append(g.adSets, spec)
		g.budgets[id] = spec.DailyBudget
		g.mu.Unlock()
	}
	return id, err
}

func (g *fakeGateway) UploadAdVideo(_ context.Context, _, _ string) (string, error) {
	return g.record("video")
}

func (g *fakeGateway) CreateAdCreative(_ context.Context, spec platform.CreativeSpec) (string, error) {
	id, err := g.record("creative")
	if err == nil {
		g.mu.Lock()
		g.creatives = append(g.creatives, spec)
		g.mu.Unlock()
	}
	return id, err
}

func (g *fakeGateway) CreateAd(_ context.Context, spec platform.AdSpec) (string, error) {
	id, err := g.record("ad")
	if err == nil {
		g.mu.Lock()
		g.ads = append(g.ads, spec)
		g.mu.Unlock()
	}
	return id, err
}

func (g *fakeGateway) UpdateAdSetStatus(_ context.Context, adSetID string, status platform.AdSetStatus) error {
	if _, err := g.record("status"); err != nil {
		return err
	}
	g.mu.Lock()
	g.statuses[adSetID] = status
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) UpdateAdSetBudget(_ context.Context, adSetID string, budget int64) error {
	if _, err := g.record("budget"); err != nil {
		return err
	}
	g.mu.Lock()
	g.budgets[adSetID] = budget
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) GetAdSetIDFromAdID(_ context.Context, adID string) (string, error) {
	if _, err := g.record("lookup"); err != nil {
		return "", err
	}
	return "adset-of-" + adID, nil
}

func (g *fakeGateway) DuplicateAdSet(_ context.Context, _, campaignID string, start time.Time) (string, error) {
	id, err := g.record("duplicate")
	if err == nil {
		g.mu.Lock()
		g.starts[id] = start
		g.campaigns[id] = campaignID
		g.mu.Unlock()
	}
	return id, err
}

func (g *fakeGateway) GetAdsInAdSet(_ context.Context, adSetID string) ([]platform.Ad, error) {
	if _, err := g.record("ads"); err != nil {
		return nil, err
	}
	if g.noAds {
		return nil, nil
	}
	return []platform.Ad{{ID: "copy-of-" + adSetID, AdSetID: adSetID, Status: "ACTIVE"}}, nil
}

type fakeGateways struct{ gw *fakeGateway }

func (f fakeGateways) ForAccount(string) (platform.Gateway, error) { return f.gw, nil }

// fakeCoordinator hands out one render per clip. Renders listed in outcomes
// are completed in the event store before SubmitAll returns, as a webhook that
// beats the engine's own PENDING write would.
type fakeCoordinator struct {
	events   *db.RedisStore
	clips    []string
	outcomes map[string]models.EventStatus
	calls    int
}

func (c *fakeCoordinator) SubmitAll(ctx context.Context, _, baseAdName, fbAdID string) ([]models.RenderJob, error) {
	c.calls++
	jobs := make([]models.RenderJob, 0, len(c.clips))
	for _, clip := range c.clips {
		renderID := fmt.Sprintf("%s-%s", fbAdID, clip)
		jobs = append(jobs, models.RenderJob{HookName: clip, RenderID: renderID})
		status, ok := c.outcomes[clip]
		if !ok {
			continue
		}
		ev := models.Event{
			Key:    models.RenderEventKey(renderID),
			Status: status,
			Payload: models.RenderPayload{
				RenderID:   renderID,
				URL:        "https://cdn.example.com/" + renderID + ".mp4",
				BaseAdName: baseAdName,
				HookName:   clip,
				FBAdID:     fbAdID,
			},
		}
		if status == models.EventFailure {
			ev.Payload.URL = ""
			ev.Payload.Error = "template error"
		}
		if err := c.events.CompleteEvent(ctx, ev); err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  map[string][]string
	cards []string
}

func newFakeNotifier() *fakeNotifier { return &fakeNotifier{sent: map[string][]string{}} }

func (n *fakeNotifier) Send(_ context.Context, channel, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent[channel] = append(n.sent[channel], message)
	return nil
}

func (n *fakeNotifier) CreateCard(_ context.Context, name, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cards = append(n.cards, name)
	return nil
}

func (n *fakeNotifier) count(channel string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent[channel])
}

// armedWatcher signals once each Watch has armed its timeout.
type armedWatcher struct {
	w     *render.Waiter
	armed chan string
}

func (a *armedWatcher) Watch(ctx context.Context, key string) (*render.Pending, error) {
	p, err := a.w.Watch(ctx, key)
	a.armed <- key
	return p, err
}

type harness struct {
	engine   *Engine
	store    *db.MemoryStore
	events   *db.RedisStore
	gw       *fakeGateway
	coord    *fakeCoordinator
	notifier *fakeNotifier
	source   *analytics.StaticSource
	clock    *clock.Mock
	waiter   *render.Waiter
	metrics  *observability.MockMetricsRegistry
	settings Settings
	// logger overrides the test logger when set before build.
	logger *zap.Logger
}

// friday is 11:00 on a Friday in UTC.
var friday = time.Date(2026, time.October, 16, 11, 0, 0, 0, time.UTC)

func testSettings() Settings {
	return Settings{
		Thresholds:         DefaultThresholds(),
		HookDailyBudget:    2000,
		ScalingDailyBudget: 20000,
		ScalingCampaignID:  "scale-campaign",
		Location:           time.UTC,
		PageID:             "page1",
		LinkURL:            "https://example.com/offer?utm_content={AD_NAME}&hook={HOOK}",
		Concurrency:        1,
		HookFailurePolicy:  config.HookPolicyAbort,
	}
}

func newHarness(t *testing.T, mutate ...func(*Settings)) *harness {
	t.Helper()
	_, events := setupTestRedis(t)
	mock := clock.NewMock()
	mock.Add(friday.Sub(mock.Now()))
	metrics := &observability.MockMetricsRegistry{}

	h := &harness{
		store:    db.NewMemoryStore(),
		events:   events,
		gw:       newFakeGateway(),
		notifier: newFakeNotifier(),
		source:   analytics.NewStaticSource(map[models.Window][]models.MetricRow{}),
		clock:    mock,
		metrics:  metrics,
		settings: testSettings(),
	}
	for _, m := range mutate {
		m(&h.settings)
	}
	h.coord = &fakeCoordinator{
		events:   events,
		clips:    []string{"question", "shock", "story"},
		outcomes: map[string]models.EventStatus{},
	}
	h.waiter = &render.Waiter{Events: events, Clock: mock, Timeout: 5 * time.Minute, Metrics: metrics}
	h.engine = h.build(t, h.waiter)
	return h
}

func (h *harness) build(t *testing.T, watcher RenderWatcher) *Engine {
	logger := h.logger
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	return NewEngine(Deps{
		Metrics:  h.source,
		Store:    h.store,
		Events:   h.events,
		Watcher:  watcher,
		Renders:  h.coord,
		Gateways: fakeGateways{gw: h.gw},
		Notifier: h.notifier,
		Clock:    h.clock,
	}, h.settings, logger, h.metrics)
}

// succeedAll completes every clip's render ahead of the engine.
func (h *harness) succeedAll() {
	for _, c := range h.coord.clips {
		h.coord.outcomes[c] = models.EventSuccess
	}
}

// seed stores ad and loads warehouse rows that reproduce the given metrics.
func (h *harness) seed(t *testing.T, ad *models.AdPerformance, lifetimeSpend, lifetimeROI, last3ROI float64) {
	t.Helper()
	if err := h.store.Save(context.Background(), ad); err != nil {
		t.Fatalf("seed ad: %v", err)
	}
	row := func(spend, roi float64) models.MetricRow {
		return models.MetricRow{
			Platform:     models.WarehousePlatformFacebook,
			AdID:         ad.FBAdID,
			TotalCost:    spend,
			TotalRevenue: spend * roi,
			ROI:          roi,
		}
	}
	h.source.Rows[models.WindowLifetime] = append(h.source.Rows[models.WindowLifetime], row(lifetimeSpend, lifetimeROI))
	h.source.Rows[models.WindowLast3Days] = append(h.source.Rows[models.WindowLast3Days], row(lifetimeSpend/4, last3ROI))
	h.source.Rows[models.WindowLast7Days] = append(h.source.Rows[models.WindowLast7Days], row(lifetimeSpend/2, last3ROI))
}

func (h *harness) get(t *testing.T, id string) *models.AdPerformance {
	t.Helper()
	ad, err := h.store.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return ad
}

func (h *harness) byLifecycle(t *testing.T, match func(models.Lifecycle) bool) []*models.AdPerformance {
	t.Helper()
	all, err := h.store.List(context.Background(), false)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var out []*models.AdPerformance
	for _, ad := range all {
		if match(ad.Lifecycle) {
			out = append(out, ad)
		}
	}
	return out
}

func originalAd(id string) *models.AdPerformance {
	return &models.AdPerformance{
		FBAdID:            id,
		FBAdSetID:         "adset-" + id,
		FBCampaignID:      "campaign1",
		FBAccountID:       "act1",
		AdName:            "Ad " + id,
		Vertical:          "insurance",
		GDriveDownloadURL: "https://drive.example.com/" + id + ".mp4",
		ScriptWriter:      "sam",
	}
}
