package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/analytics"
	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
)

var (
	adCount     = flag.Int("ads", 40, "number of ads to create")
	days        = flag.Int("days", 14, "days of daily stats per ad")
	account     = flag.String("account", "act_1000", "ad account id")
	campaign    = flag.String("campaign", "23850000000000001", "campaign id")
	seed        = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	withStats   = flag.Bool("stats", true, "insert daily stats into the warehouse")
	skipRefresh = flag.Bool("skip-refresh", false, "skip the aggregate call after seeding")
)

var verticals = []string{"auto", "home", "health", "finance", "legal"}

var hookClips = []models.HookClip{
	{Name: "question", URL: "https://cdn.example.com/hooks/question.mp4", Active: true},
	{Name: "shock", URL: "https://cdn.example.com/hooks/shock.mp4", Active: true},
	{Name: "testimonial", URL: "https://cdn.example.com/hooks/testimonial.mp4", Active: true},
}

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	ctx := context.Background()
	r := rand.New(rand.NewSource(*seed))
	now := time.Now().UTC()

	for _, c := range hookClips {
		if err := pg.UpsertHookClip(ctx, c); err != nil {
			logger.Fatal("insert hook clip", zap.Error(err))
		}
	}

	ads := make([]*models.AdPerformance, 0, *adCount)
	for i := 0; i < *adCount; i++ {
		ad := randomAd(r, i, now)
		if err := pg.Save(ctx, ad); err != nil {
			logger.Fatal("insert ad", zap.String("ad_id", ad.FBAdID), zap.Error(err))
		}
		ads = append(ads, ad)
	}
	fmt.Printf("%d ads and %d hook clips inserted\n", len(ads), len(hookClips))

	if !*withStats {
		return
	}

	w, err := analytics.InitWarehouse(cfg.WarehouseDriver, cfg.WarehouseDSN, analytics.Tables{
		DailyStats: cfg.DailyStatsTable,
		Last3Days:  cfg.Last3DaysTable,
		Last7Days:  cfg.Last7DaysTable,
		Lifetime:   cfg.LifetimeTable,
	}, analytics.PoolConfig{MaxOpenConns: 2, MaxIdleConns: 1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect warehouse: %v\n", err)
		os.Exit(1)
	}
	defer w.Close()

	rows := 0
	for _, ad := range ads {
		n, err := insertDailyStats(ctx, w, r, ad.FBAdID, now, *days)
		if err != nil {
			logger.Fatal("insert daily stats", zap.String("ad_id", ad.FBAdID), zap.Error(err))
		}
		rows += n
	}
	fmt.Printf("%d daily stats rows inserted\n", rows)

	if !*skipRefresh {
		if err := callAggregateEndpoint(&cfg); err != nil {
			logger.Error("aggregate endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to refresh window tables: %v\n", err)
		} else {
			fmt.Println("window tables refreshed")
		}
	}
}

// randomAd builds an active original ad. The creative lineage fields mimic
// the naming the media buyers use.
func randomAd(r *rand.Rand, i int, now time.Time) *models.AdPerformance {
	vertical := verticals[r.Intn(len(verticals))]
	id := fmt.Sprintf("2385%011d", 10_000_000+i)
	return &models.AdPerformance{
		FBAdID:            id,
		FBAdSetID:         fmt.Sprintf("2385%011d", 20_000_000+i),
		FBCampaignID:      *campaign,
		FBAccountID:       *account,
		AdName:            fmt.Sprintf("%s-%03d-%s", vertical, i, fakeConcept(r)),
		Vertical:          vertical,
		GDriveDownloadURL: fmt.Sprintf("https://drive.example.com/uc?id=%s&export=download", id),
		IdeaWriter:        writers[r.Intn(len(writers))],
		ScriptWriter:      writers[r.Intn(len(writers))],
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

var writers = []string{"ava", "ben", "chen", "dara", "eli"}

func fakeConcept(r *rand.Rand) string {
	concepts := []string{"hero", "ugc", "explainer", "before-after", "listicle", "founder"}
	return concepts[r.Intn(len(concepts))]
}

// insertDailyStats writes one row per day. Each ad draws a base ROI so the
// fleet spreads across the pause, hold and grow bands.
func insertDailyStats(ctx context.Context, w *analytics.Warehouse, r *rand.Rand, adID string, now time.Time, n int) (int, error) {
	baseROI := 0.4 + r.Float64()*1.6
	today := now.Truncate(24 * time.Hour)
	query := `INSERT INTO ` + w.Tables.DailyStats + ` (platform, ad_id, date, cost, revenue, leads, clicks) VALUES (?, ?, ?, ?, ?, ?, ?)`
	for d := 0; d < n; d++ {
		cost := 5 + r.Float64()*35
		revenue := cost * (baseROI + (r.Float64()-0.5)*0.4)
		if revenue < 0 {
			revenue = 0
		}
		clicks := int64(cost * (1 + r.Float64()*3))
		leads := clicks / int64(5+r.Intn(10))
		if _, err := w.DB.ExecContext(ctx, query,
			models.WarehousePlatformFacebook, adID, today.AddDate(0, 0, -d), cost, revenue, leads, clicks); err != nil {
			return d, err
		}
	}
	return n, nil
}

func callAggregateEndpoint(cfg *config.Config) error {
	url := fmt.Sprintf("http://localhost:%s/aggregate", cfg.Port)
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}
