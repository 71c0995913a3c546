package logic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/facebookgo/clock"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/macros"
	"github.com/patrickwarner/creativeloop/internal/middleware"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/notify"
	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/platform"
	"github.com/patrickwarner/creativeloop/internal/render"
)

// MetricsSource returns warehouse rows for one attribution window.
type MetricsSource interface {
	Query(ctx context.Context, window models.Window) ([]models.MetricRow, error)
}

// PerformanceStore persists ad performance records.
type PerformanceStore interface {
	GetAllActive(ctx context.Context) ([]*models.AdPerformance, error)
	Save(ctx context.Context, ad *models.AdPerformance) error
	NextCounter(ctx context.Context, name string) (int64, error)
}

// EventCreator writes render events if they do not exist yet.
type EventCreator interface {
	CreateEvent(ctx context.Context, ev models.Event) (bool, error)
}

// RenderWatcher awaits render events.
type RenderWatcher interface {
	Watch(ctx context.Context, key string) (*render.Pending, error)
}

// RenderCoordinator submits hook renders for a base video.
type RenderCoordinator interface {
	SubmitAll(ctx context.Context, baseVideoURL, baseAdName, fbAdID string) ([]models.RenderJob, error)
}

// GatewayProvider resolves the platform gateway for an ad account.
type GatewayProvider interface {
	ForAccount(accountID string) (platform.Gateway, error)
}

// Notifier delivers operator notifications.
type Notifier interface {
	Send(ctx context.Context, channel, message string) error
	CreateCard(ctx context.Context, name, description string) error
}

// LinkExpander fills tracking macros in the creative link URL.
type LinkExpander interface {
	ExpandURL(rawURL string, ctx *macros.Context) (string, error)
}

// RunLock guards against overlapping runs.
type RunLock interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// HookCounter is the counter used to number hook variants.
const HookCounter = "hooks"

// Settings holds the engine's tunables.
type Settings struct {
	Thresholds         Thresholds
	HookDailyBudget    int64
	ScalingDailyBudget int64
	ScalingCampaignID  string
	Location           *time.Location
	PageID             string
	LinkURL            string
	Concurrency        int
	HookFailurePolicy  string
	// EvaluationLogRate is the share of hold and skip evaluations logged at
	// info. Zero logs all of them.
	EvaluationLogRate float64
}

// SettingsFromConfig builds Settings from cfg.
func SettingsFromConfig(cfg config.Config) (Settings, error) {
	loc, err := time.LoadLocation(cfg.ScalingTimezone)
	if err != nil {
		return Settings{}, fmt.Errorf("load scaling timezone %q: %w", cfg.ScalingTimezone, err)
	}
	logRate := cfg.LogSampleRate
	if logRate <= 0 {
		logRate = observability.SamplingRateForEnv(cfg.Env)
	}
	return Settings{
		Thresholds:         ThresholdsFromConfig(cfg),
		HookDailyBudget:    cfg.HookDailyBudget,
		ScalingDailyBudget: cfg.ScalingDailyBudget,
		ScalingCampaignID:  cfg.ScalingCampaignID,
		Location:           loc,
		PageID:             cfg.FBPageID,
		LinkURL:            cfg.FBLinkURL,
		Concurrency:        cfg.EngineConcurrency,
		HookFailurePolicy:  cfg.HookFailurePolicy,
		EvaluationLogRate:  logRate,
	}, nil
}

// Deps are the collaborators the engine drives. Lock is optional; a nil
// Notifier drops messages and a nil Links expands the default macros.
type Deps struct {
	Metrics  MetricsSource
	Store    PerformanceStore
	Events   EventCreator
	Watcher  RenderWatcher
	Renders  RenderCoordinator
	Gateways GatewayProvider
	Notifier Notifier
	Links    LinkExpander
	Lock     RunLock
	Clock    clock.Clock
}

// Engine runs the ad lifecycle rules over every active ad.
type Engine struct {
	deps     Deps
	settings Settings
	clock    clock.Clock
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
	tracer   trace.Tracer
	sampler  *observability.Sampler
}

// NewEngine creates an Engine.
func NewEngine(deps Deps, settings Settings, logger *zap.Logger, metrics observability.MetricsRegistry) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	clk := deps.Clock
	if clk == nil {
		clk = clock.New()
	}
	if settings.Concurrency < 1 {
		settings.Concurrency = 1
	}
	if settings.EvaluationLogRate <= 0 {
		settings.EvaluationLogRate = 1
	}
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if deps.Notifier == nil {
		deps.Notifier = notify.New(nil, nil, logger, metrics)
	}
	if deps.Links == nil {
		deps.Links = macros.NewExpander(logger, nil, false)
	}
	return &Engine{
		deps:     deps,
		settings: settings,
		clock:    clk,
		logger:   logger,
		metrics:  metrics,
		tracer:   observability.GetTracer("logic.engine"),
		sampler:  observability.NewSampler(settings.EvaluationLogRate),
	}
}

// Thresholds returns the engine's rule ladder.
func (e *Engine) Thresholds() Thresholds { return e.settings.Thresholds }

// RunSummary describes one engine pass.
type RunSummary struct {
	RunID        string           `json:"runId"`
	StartedAt    time.Time        `json:"startedAt"`
	Duration     time.Duration    `json:"duration"`
	Processed    int              `json:"processed"`
	Decisions    map[Decision]int `json:"decisions"`
	HooksCreated int              `json:"hooksCreated"`
	AdsScaled    int              `json:"adsScaled"`
}

type summaryRecorder struct {
	mu sync.Mutex
	s  *RunSummary
}

func (r *summaryRecorder) decision(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.Processed++
	r.s.Decisions[d]++
}

func (r *summaryRecorder) hooks(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.HooksCreated += n
}

func (r *summaryRecorder) scaled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.s.AdsScaled++
}

// snapshot holds one run's warehouse rows per window.
type snapshot map[models.Window][]models.MetricRow

// Run performs one pass over every active ad. The first per-ad failure stops
// the pass and is returned; ads processed before it keep their stored state.
func (e *Engine) Run(ctx context.Context) (summary RunSummary, err error) {
	summary = RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: e.clock.Now(),
		Decisions: make(map[Decision]int),
	}
	ctx, span := e.tracer.Start(ctx, "engine.Run", trace.WithAttributes(attribute.String("run.id", summary.RunID)))
	logger := middleware.LoggerFromContext(ctx, e.logger).With(zap.String("run_id", summary.RunID))
	defer func() {
		summary.Duration = e.clock.Now().Sub(summary.StartedAt)
		status := "success"
		switch {
		case errors.Is(err, db.ErrLockHeld):
			status = "skipped"
		case err != nil:
			status = "failure"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		e.metrics.IncrementEngineRuns(status)
		e.metrics.RecordEngineRunDuration(summary.Duration)
		span.End()
	}()

	if e.deps.Lock != nil {
		if err := e.deps.Lock.Acquire(ctx); err != nil {
			return summary, fmt.Errorf("acquire run lock: %w", err)
		}
		defer func() {
			if rerr := e.deps.Lock.Release(context.WithoutCancel(ctx)); rerr != nil {
				logger.Warn("failed to release run lock", zap.Error(rerr))
			}
		}()
	}

	snap, err := e.fetchMetrics(ctx)
	if err != nil {
		return summary, err
	}
	ads, err := e.deps.Store.GetAllActive(ctx)
	if err != nil {
		return summary, fmt.Errorf("load active ads: %w", err)
	}
	logger.Info("engine run started", zap.Int("ads", len(ads)), zap.Int("concurrency", e.settings.Concurrency))

	rec := &summaryRecorder{s: &summary}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.settings.Concurrency)
	for _, ad := range ads {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := e.processAd(gctx, ad, snap, rec, logger); err != nil {
				return fmt.Errorf("ad %s: %w", ad.FBAdID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("engine run failed", zap.Error(err))
		return summary, err
	}
	e.sampler.Flush(logger)
	logger.Info("engine run finished",
		zap.Int("processed", summary.Processed),
		zap.Int("hooks_created", summary.HooksCreated),
		zap.Int("ads_scaled", summary.AdsScaled))
	return summary, nil
}

func (e *Engine) fetchMetrics(ctx context.Context) (snapshot, error) {
	var mu sync.Mutex
	snap := make(snapshot, len(models.Windows))
	g, gctx := errgroup.WithContext(ctx)
	for _, w := range models.Windows {
		g.Go(func() error {
			rows, err := e.deps.Metrics.Query(gctx, w)
			if err != nil {
				return fmt.Errorf("query %s metrics: %w", w, err)
			}
			mu.Lock()
			snap[w] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}

func (e *Engine) processAd(ctx context.Context, ad *models.AdPerformance, snap snapshot, rec *summaryRecorder, logger *zap.Logger) (err error) {
	ctx, span := e.tracer.Start(ctx, "engine.processAd", trace.WithAttributes(attribute.String("ad.id", ad.FBAdID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	logger = logger.With(zap.String("ad_id", ad.FBAdID), zap.String("ad_name", ad.AdName))
	ctx = middleware.ContextWithLogger(ctx, logger)

	if !ad.Lifecycle.Active() {
		logger.Debug("skipping inactive ad")
		e.recordDecision(rec, DecisionSkipInactive)
		return nil
	}

	// Rebuilt from scratch each pass; windows missing from the warehouse become zero.
	ad.PerformanceMetrics = models.BuildPerformanceMetrics(
		snap[models.WindowLast3Days], snap[models.WindowLast7Days], snap[models.WindowLifetime], ad.FBAdID)
	ad.UpdatedAt = e.clock.Now()
	if err := e.deps.Store.Save(ctx, ad); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}

	plan := Classify(ad, e.settings.Thresholds)
	span.SetAttributes(attribute.String("ad.decision", string(plan.Decision)))
	level := zap.DebugLevel
	if plan.Decision == DecisionPause || plan.Decision == DecisionGrow || e.sampler.Allow() {
		level = zap.InfoLevel
	}
	logger.Log(level, "ad evaluated",
		zap.String("decision", string(plan.Decision)),
		zap.String("reason", plan.Reason),
		zap.Float64("lifetime_spend", ad.LifetimeSpend()),
		zap.Float64("lifetime_roi", ad.LifetimeROI()),
		zap.Float64("last3days_roi", ad.Last3DaysROI()))

	switch plan.Decision {
	case DecisionPause:
		err = e.pause(ctx, ad, plan)
	case DecisionGrow:
		err = e.grow(ctx, ad, plan, rec, logger)
	}
	if err != nil {
		return err
	}
	e.recordDecision(rec, plan.Decision)
	return nil
}

func (e *Engine) recordDecision(rec *summaryRecorder, d Decision) {
	rec.decision(d)
	e.metrics.IncrementDecision(string(d))
}

func (e *Engine) gateway(accountID string) (platform.Gateway, error) {
	if e.deps.Gateways == nil {
		return nil, fmt.Errorf("%w %q", ErrNoGateway, accountID)
	}
	gw, err := e.deps.Gateways.ForAccount(accountID)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrNoGateway, accountID, err)
	}
	return gw, nil
}

func (e *Engine) pause(ctx context.Context, ad *models.AdPerformance, plan Plan) error {
	gw, err := e.gateway(ad.FBAccountID)
	if err != nil {
		return err
	}
	adSetID := ad.FBAdSetID
	if adSetID == "" {
		if adSetID, err = gw.GetAdSetIDFromAdID(ctx, ad.FBAdID); err != nil {
			return err
		}
	}
	if err := gw.UpdateAdSetStatus(ctx, adSetID, platform.StatusPaused); err != nil {
		return err
	}
	ad.Lifecycle.Activity = models.ActivityPaused
	ad.UpdatedAt = e.clock.Now()
	if err := e.deps.Store.Save(ctx, ad); err != nil {
		return fmt.Errorf("save paused ad: %w", err)
	}
	msg := fmt.Sprintf("Paused %s (%s): %s", ad.AdName, ad.FBAdID, plan.Reason)
	return e.deps.Notifier.Send(ctx, notify.ChannelPaused, msg)
}

func (e *Engine) grow(ctx context.Context, ad *models.AdPerformance, plan Plan, rec *summaryRecorder, logger *zap.Logger) error {
	if !plan.CreateCard && !plan.CreateHooks && !plan.Scale {
		logger.Debug("no growth actions pending")
		return nil
	}
	gw, err := e.gateway(ad.FBAccountID)
	if err != nil {
		return err
	}

	if plan.CreateCard {
		desc := fmt.Sprintf("Ad %s (%s) in %s reached lifetime ROI %.2f on spend %.2f. Script: %s. Hook: %s.",
			ad.AdName, ad.FBAdID, ad.Vertical, ad.LifetimeROI(), ad.LifetimeSpend(), ad.ScriptWriter, ad.HookWriter)
		if err := e.deps.Notifier.CreateCard(ctx, "New hooks: "+ad.AdName, desc); err != nil {
			return err
		}
		if err := e.deps.Notifier.Send(ctx, notify.ChannelGrowth,
			fmt.Sprintf("%s (%s) is a winner at ROI %.2f, requested new hooks", ad.AdName, ad.FBAdID, ad.LifetimeROI())); err != nil {
			return err
		}
	}

	if plan.CreateHooks {
		hooks, err := e.CreateHooks(ctx, gw, ad)
		rec.hooks(len(hooks))
		if len(hooks) > 0 && ad.Lifecycle.Hooks == models.HookDone {
			if nerr := e.deps.Notifier.Send(ctx, notify.ChannelHooks, hooksMessage(ad, hooks)); nerr != nil {
				return errors.Join(err, nerr)
			}
		}
		if err != nil {
			return err
		}
	}

	if plan.Scale {
		scaled, err := e.Scale(ctx, gw, ad)
		if err != nil {
			return err
		}
		rec.scaled()
		msg := fmt.Sprintf("Scaled %s (%s) into campaign %s as ad %s in ad set %s",
			ad.AdName, ad.FBAdID, scaled.FBCampaignID, scaled.FBAdID, scaled.FBAdSetID)
		if err := e.deps.Notifier.Send(ctx, notify.ChannelScaling, msg); err != nil {
			return err
		}
	}
	return nil
}

func hooksMessage(parent *models.AdPerformance, hooks []*models.AdPerformance) string {
	msg := fmt.Sprintf("Created %d hook ads for %s (%s):", len(hooks), parent.AdName, parent.FBAdID)
	for _, h := range hooks {
		msg += fmt.Sprintf("\n- %s (%s)", h.AdName, h.FBAdID)
	}
	return msg
}
