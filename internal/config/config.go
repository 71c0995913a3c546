package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	DebugTrace   bool

	// Env selects environment defaults (development, staging, production).
	Env string
	// LogSampleRate is the share of routine per-ad evaluation lines logged.
	// Zero picks the default for Env.
	LogSampleRate float64

	RedisAddr   string
	PostgresDSN string

	// Warehouse configuration. WarehouseDriver selects "clickhouse" or "snowflake".
	WarehouseDriver     string
	WarehouseDSN        string
	DailyStatsTable     string
	Last3DaysTable      string
	Last7DaysTable      string
	LifetimeTable       string
	AggregationInterval time.Duration

	// Decision thresholds
	SpendThreshold      float64
	PauseROIThreshold   float64
	HookROIThreshold    float64
	ScalingROIThreshold float64
	ScalingDailyBudget  int64
	HookDailyBudget     int64
	ScalingCampaignID   string
	ScalingTimezone     string

	// Engine behaviour
	EngineConcurrency int
	HookFailurePolicy string
	RenderTimeout     time.Duration
	RunInterval       time.Duration
	RunLockTTL        time.Duration
	EventTTL          time.Duration

	// Facebook Graph API
	FBGraphURL        string
	FBAPIVersion      string
	FBAccessToken     string
	FBAccessTokens    map[string]string
	FBPageID          string
	FBLinkURL         string
	FBRequestTimeout  time.Duration
	FBMaxRetries      int
	RateLimitEnabled  bool
	RateLimitCapacity int
	RateLimitRefill   int

	// Creatomate
	CreatomateURL        string
	CreatomateAPIKey     string
	CreatomateTemplateID string
	CreatomateWebhookURL string
	WebhookToken         string
	// WebhookSigningSecret, when set, makes every render callback carry a
	// signature bound to its ad and hook clip.
	WebhookSigningSecret string
	WebhookSignatureTTL  time.Duration

	// Notification sinks
	TelegramBotToken string
	TelegramURL      string
	TelegramChats    map[string]string
	TrelloURL        string
	TrelloKey        string
	TrelloToken      string
	TrelloListID     string

	// Database connection pooling configuration
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
	// Warehouse connection pooling configuration
	WHMaxOpenConns    int
	WHMaxIdleConns    int
	WHConnMaxLifetime time.Duration
	WHConnMaxIdleTime time.Duration
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Hook failure policies.
const (
	HookPolicyAbort   = "abort"
	HookPolicyIsolate = "isolate"
)

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8787")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	// /run blocks for a full engine pass
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 30*time.Minute)
	cfg.ServiceName = getenv("SERVICE_NAME", "creativeloop")
	cfg.DebugTrace = envBool("DEBUG_TRACE", false)
	cfg.Env = strings.ToLower(getenv("ENV", "production"))
	cfg.LogSampleRate = envFloat("LOG_SAMPLE_RATE", 0)

	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.PostgresDSN = getenv("POSTGRES_DSN", "postgres://postgres@127.0.0.1:5432/postgres?sslmode=disable")

	cfg.WarehouseDriver = strings.ToLower(getenv("WAREHOUSE_DRIVER", "clickhouse"))
	cfg.WarehouseDSN = getenv("WAREHOUSE_DSN", "clickhouse://default:@localhost:9000/default")
	cfg.DailyStatsTable = getenv("DAILY_STATS_TABLE", "ad_daily_stats")
	cfg.Last3DaysTable = getenv("LAST3DAYS_TABLE", "ad_metrics_last3days")
	cfg.Last7DaysTable = getenv("LAST7DAYS_TABLE", "ad_metrics_last7days")
	cfg.LifetimeTable = getenv("LIFETIME_TABLE", "ad_metrics_lifetime")
	cfg.AggregationInterval = envDuration("AGGREGATION_INTERVAL", 4*time.Hour)

	cfg.SpendThreshold = envFloat("SPEND_THRESHOLD", 40)
	cfg.PauseROIThreshold = envFloat("PAUSE_ROI_THRESHOLD", 1.0)
	cfg.HookROIThreshold = envFloat("HOOK_ROI_THRESHOLD", 1.3)
	cfg.ScalingROIThreshold = envFloat("SCALING_ROI_THRESHOLD", 1.5)
	cfg.ScalingDailyBudget = int64(envInt("SCALING_DAILY_BUDGET", 20000))
	cfg.HookDailyBudget = int64(envInt("HOOK_DAILY_BUDGET", 2000))
	cfg.ScalingCampaignID = getenv("SCALING_CAMPAIGN_ID", "")
	cfg.ScalingTimezone = getenv("SCALING_TIMEZONE", "America/New_York")

	cfg.EngineConcurrency = envInt("ENGINE_CONCURRENCY", 1)
	if cfg.EngineConcurrency < 1 {
		cfg.EngineConcurrency = 1
	}
	cfg.HookFailurePolicy = strings.ToLower(getenv("HOOK_FAILURE_POLICY", HookPolicyAbort))
	if cfg.HookFailurePolicy != HookPolicyIsolate {
		cfg.HookFailurePolicy = HookPolicyAbort
	}
	cfg.RenderTimeout = envDuration("RENDER_TIMEOUT", 5*time.Minute)
	// zero disables the scheduled run; passes are then triggered through POST /run
	cfg.RunInterval = envDuration("RUN_INTERVAL", 0)
	cfg.RunLockTTL = envDuration("RUN_LOCK_TTL", time.Hour)
	cfg.EventTTL = envDuration("EVENT_TTL", 24*time.Hour)

	cfg.FBGraphURL = getenv("FB_GRAPH_URL", "https://graph.facebook.com")
	cfg.FBAPIVersion = getenv("FB_API_VERSION", "v19.0")
	cfg.FBAccessToken = getenv("FB_ACCESS_TOKEN", "")
	cfg.FBAccessTokens = envMap("FB_ACCOUNT_TOKENS")
	cfg.FBPageID = getenv("FB_PAGE_ID", "")
	cfg.FBLinkURL = getenv("FB_LINK_URL", "")
	cfg.FBRequestTimeout = envDuration("FB_REQUEST_TIMEOUT", 60*time.Second)
	cfg.FBMaxRetries = envInt("FB_MAX_RETRIES", 3)
	cfg.RateLimitEnabled = envBool("RATE_LIMIT_ENABLED", true)
	cfg.RateLimitCapacity = envInt("RATE_LIMIT_CAPACITY", 20)
	cfg.RateLimitRefill = envInt("RATE_LIMIT_REFILL_RATE", 5)

	cfg.CreatomateURL = getenv("CREATOMATE_URL", "https://api.creatomate.com")
	cfg.CreatomateAPIKey = getenv("CREATOMATE_API_KEY", "")
	cfg.CreatomateTemplateID = getenv("CREATOMATE_TEMPLATE_ID", "")
	cfg.CreatomateWebhookURL = getenv("CREATOMATE_WEBHOOK_URL", "")
	cfg.WebhookToken = getenv("WEBHOOK_TOKEN", "")
	cfg.WebhookSigningSecret = getenv("WEBHOOK_SIGNING_SECRET", "")
	cfg.WebhookSignatureTTL = envDuration("WEBHOOK_SIGNATURE_TTL", 24*time.Hour)

	cfg.TelegramBotToken = getenv("TELEGRAM_BOT_TOKEN", "")
	cfg.TelegramURL = getenv("TELEGRAM_URL", "https://api.telegram.org")
	cfg.TelegramChats = envMap("TELEGRAM_CHATS")
	cfg.TrelloURL = getenv("TRELLO_URL", "https://api.trello.com")
	cfg.TrelloKey = getenv("TRELLO_KEY", "")
	cfg.TrelloToken = getenv("TRELLO_TOKEN", "")
	cfg.TrelloListID = getenv("TRELLO_LIST_ID", "")

	// Database connection pooling configuration
	cfg.DBMaxOpenConns = envInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = envInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = envDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.DBConnMaxIdleTime = envDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// The warehouse sees three reads per run and one rebuild per interval
	cfg.WHMaxOpenConns = envInt("WH_MAX_OPEN_CONNS", 5)
	cfg.WHMaxIdleConns = envInt("WH_MAX_IDLE_CONNS", 2)
	cfg.WHConnMaxLifetime = envDuration("WH_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.WHConnMaxIdleTime = envDuration("WH_CONN_MAX_IDLE_TIME", 1*time.Minute)

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0) // Default to 100% sampling for dev

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envInt parses an integer environment variable. When unset or invalid, def is returned.
func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envMap parses a comma separated list of key=value pairs, e.g.
// "hooks=-100123,scaling=-100456". Malformed entries are ignored.
func envMap(key string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(os.Getenv(key), ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
