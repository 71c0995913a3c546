// Package app wires the service's collaborators from configuration. The API
// server, the ops CLI and the MCP server all start from Open.
package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/facebookgo/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/analytics"
	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/logic"
	"github.com/patrickwarner/creativeloop/internal/macros"
	"github.com/patrickwarner/creativeloop/internal/notify"
	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/platform"
	"github.com/patrickwarner/creativeloop/internal/platform/ratelimit"
	"github.com/patrickwarner/creativeloop/internal/render"
	"github.com/patrickwarner/creativeloop/internal/reporting"
)

// RunLockKey names the Redis lease that serializes engine runs.
const RunLockKey = "engine-run"

// ReportTopAds is how many ads the performance report ranks.
const ReportTopAds = 10

// App holds the connected collaborators.
type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Metrics    observability.MetricsRegistry
	PG         *db.Postgres
	Redis      *db.RedisStore
	Warehouse  *analytics.Warehouse
	Aggregator *analytics.Aggregator
	Gateways   *platform.Registry
	Engine     *logic.Engine
}

// Open connects to Postgres, Redis and the warehouse and builds the engine.
// On error everything opened so far is closed.
func Open(ctx context.Context, cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry) (a *App, err error) {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	a = &App{Config: cfg, Logger: logger, Metrics: metrics}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	a.PG, err = db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		return a, fmt.Errorf("failed to connect postgres: %w", err)
	}
	a.Redis, err = db.InitRedis(cfg.RedisAddr, cfg.EventTTL)
	if err != nil {
		return a, fmt.Errorf("failed to connect redis: %w", err)
	}
	a.Warehouse, err = analytics.InitWarehouse(cfg.WarehouseDriver, cfg.WarehouseDSN, analytics.Tables{
		DailyStats: cfg.DailyStatsTable,
		Last3Days:  cfg.Last3DaysTable,
		Last7Days:  cfg.Last7DaysTable,
		Lifetime:   cfg.LifetimeTable,
	}, analytics.PoolConfig{
		MaxOpenConns:    cfg.WHMaxOpenConns,
		MaxIdleConns:    cfg.WHMaxIdleConns,
		ConnMaxLifetime: cfg.WHConnMaxLifetime,
		ConnMaxIdleTime: cfg.WHConnMaxIdleTime,
	})
	if err != nil {
		return a, fmt.Errorf("failed to connect warehouse: %w", err)
	}
	a.Aggregator = analytics.NewAggregator(a.Warehouse, logger, metrics)

	limiter := ratelimit.NewAccountLimiter(ratelimit.Config{
		Capacity:   cfg.RateLimitCapacity,
		RefillRate: cfg.RateLimitRefill,
		Enabled:    cfg.RateLimitEnabled,
	}, metrics)
	a.Gateways = platform.NewRegistry(platform.ClientFactory(platform.ClientConfig{
		BaseURL:    cfg.FBGraphURL,
		APIVersion: cfg.FBAPIVersion,
		Timeout:    cfg.FBRequestTimeout,
		MaxRetries: cfg.FBMaxRetries,
	}, cfg.FBAccessToken, cfg.FBAccessTokens, limiter, logger, metrics))

	settings, err := logic.SettingsFromConfig(cfg)
	if err != nil {
		return a, err
	}

	links := macros.NewExpander(logger, prometheus.DefaultRegisterer, false)
	if unknown := links.ValidateURL(cfg.FBLinkURL); len(unknown) > 0 {
		logger.Warn("link url has unsupported macros", zap.Strings("macros", unknown))
	}

	deps := logic.Deps{
		Metrics: a.Warehouse,
		Store:   a.PG,
		Events:  a.Redis,
		Watcher: render.NewWaiter(a.Redis, cfg.RenderTimeout, metrics),
		Renders: render.NewCoordinator(render.CoordinatorConfig{
			BaseURL:       cfg.CreatomateURL,
			APIKey:        cfg.CreatomateAPIKey,
			TemplateID:    cfg.CreatomateTemplateID,
			WebhookURL:    webhookURL(cfg),
			SigningSecret: cfg.WebhookSigningSecret,
		}, a.PG, logger),
		Gateways: a.Gateways,
		Notifier: NewNotifier(cfg, logger, metrics),
		Links:    links,
		Clock:    clock.New(),
	}
	if cfg.RunLockTTL > 0 {
		deps.Lock = db.NewRedisLock(a.Redis.Client, RunLockKey, cfg.RunLockTTL)
	}
	a.Engine = logic.NewEngine(deps, settings, logger, metrics)

	logger.Info("collaborators connected",
		zap.String("warehouse_driver", a.Warehouse.Driver),
		zap.Int("engine_concurrency", settings.Concurrency),
		zap.String("hook_failure_policy", settings.HookFailurePolicy))
	return a, nil
}

// NewNotifier builds the notifier from whichever sinks are configured.
func NewNotifier(cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry) *notify.Notifier {
	var chat notify.Sender
	if cfg.TelegramBotToken != "" {
		chat = notify.NewTelegram(cfg.TelegramURL, cfg.TelegramBotToken, cfg.TelegramChats, logger)
	}
	var board notify.CardCreator
	if cfg.TrelloKey != "" && cfg.TrelloListID != "" {
		board = notify.NewTrello(cfg.TrelloURL, cfg.TrelloKey, cfg.TrelloToken, cfg.TrelloListID, logger)
	}
	return notify.New(chat, board, logger, metrics)
}

// webhookURL appends the shared webhook token to the configured callback URL.
func webhookURL(cfg config.Config) string {
	if cfg.CreatomateWebhookURL == "" || cfg.WebhookToken == "" {
		return cfg.CreatomateWebhookURL
	}
	sep := "?"
	if strings.Contains(cfg.CreatomateWebhookURL, "?") {
		sep = "&"
	}
	return cfg.CreatomateWebhookURL + sep + "token=" + cfg.WebhookToken
}

// Report generates the performance summary from Postgres.
func (a *App) Report(ctx context.Context) (*reporting.Summary, error) {
	return reporting.GenerateSummary(ctx, a.PG.DB, a.Config.SpendThreshold, ReportTopAds)
}

// Close releases every connection App opened.
func (a *App) Close() {
	if a.Warehouse != nil {
		a.Warehouse.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.PG != nil {
		a.PG.Close()
	}
}
