// Package reporting summarizes the stored ad performance records: how many ads
// sit in each lifecycle phase, how each vertical performs over the lifetime
// window, and which ads return the most.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/patrickwarner/creativeloop/internal/models"
)

const lifetimeSpend = `COALESCE((performance_metrics->'fb'->'lifetime'->>'spend')::float8, 0)`
const lifetimeRevenue = `COALESCE((performance_metrics->'fb'->'lifetime'->>'revenue')::float8, 0)`
const lifetimeROI = `COALESCE((performance_metrics->'fb'->'lifetime'->>'roi')::float8, 0)`

// VerticalMetrics is the lifetime performance of all ads in one vertical.
// ROI is revenue over spend, 0 when nothing was spent.
type VerticalMetrics struct {
	Vertical string  `json:"vertical"`
	Ads      int64   `json:"ads"`
	Spend    float64 `json:"spend"`
	Revenue  float64 `json:"revenue"`
	ROI      float64 `json:"roi"`
}

// AdMetrics is one entry in the top ads ranking.
type AdMetrics struct {
	FBAdID   string       `json:"fbAdId"`
	AdName   string       `json:"adName"`
	Vertical string       `json:"vertical"`
	Phase    models.Phase `json:"phase"`
	Spend    float64      `json:"spend"`
	Revenue  float64      `json:"revenue"`
	ROI      float64      `json:"roi"`
}

// Summary is the performance report over every stored ad.
type Summary struct {
	GeneratedAt time.Time              `json:"generatedAt"`
	TotalAds    int64                  `json:"totalAds"`
	Phases      map[models.Phase]int64 `json:"phases"`
	Verticals   []VerticalMetrics      `json:"verticals"`
	TopAds      []AdMetrics            `json:"topAds"`
}

// GenerateSummary queries Postgres and assembles a Summary. Only ads with at
// least minSpend lifetime spend are ranked, and at most limit of them.
func GenerateSummary(ctx context.Context, db *sql.DB, minSpend float64, limit int) (*Summary, error) {
	summary := &Summary{
		GeneratedAt: time.Now().UTC(),
		Phases:      make(map[models.Phase]int64),
	}

	if err := countPhases(ctx, db, summary); err != nil {
		return nil, fmt.Errorf("count phases: %w", err)
	}

	verticals, err := getVerticalMetrics(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("get vertical metrics: %w", err)
	}
	summary.Verticals = verticals

	top, err := getTopAds(ctx, db, minSpend, limit)
	if err != nil {
		return nil, fmt.Errorf("get top ads: %w", err)
	}
	summary.TopAds = top

	return summary, nil
}

// countPhases groups ads by their lifecycle flags and folds each combination
// into its phase.
func countPhases(ctx context.Context, db *sql.DB, summary *Summary) error {
	query := `
		SELECT fb_is_active, is_hook, has_hooks_created, is_scaled, has_scaled, COUNT(*)
		FROM ad_performance
		GROUP BY fb_is_active, is_hook, has_hooks_created, is_scaled, has_scaled`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query phases: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var f models.Flags
		var n int64
		if err := rows.Scan(&f.FBIsActive, &f.IsHook, &f.HasHooksCreated, &f.IsScaled, &f.HasScaled, &n); err != nil {
			return fmt.Errorf("scan phase: %w", err)
		}
		summary.Phases[models.LifecycleFromFlags(f).Phase()] += n
		summary.TotalAds += n
	}
	return rows.Err()
}

func getVerticalMetrics(ctx context.Context, db *sql.DB) ([]VerticalMetrics, error) {
	query := `
		SELECT
			vertical,
			COUNT(*) AS ads,
			SUM(` + lifetimeSpend + `) AS spend,
			SUM(` + lifetimeRevenue + `) AS revenue
		FROM ad_performance
		GROUP BY vertical
		ORDER BY spend DESC, vertical`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query vertical metrics: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []VerticalMetrics
	for rows.Next() {
		var v VerticalMetrics
		if err := rows.Scan(&v.Vertical, &v.Ads, &v.Spend, &v.Revenue); err != nil {
			return nil, fmt.Errorf("scan vertical metrics: %w", err)
		}
		if v.Spend > 0 {
			v.ROI = v.Revenue / v.Spend
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func getTopAds(ctx context.Context, db *sql.DB, minSpend float64, limit int) ([]AdMetrics, error) {
	query := `
		SELECT
			fb_ad_id, ad_name, vertical,
			fb_is_active, is_hook, has_hooks_created, is_scaled, has_scaled,
			` + lifetimeSpend + ` AS spend,
			` + lifetimeRevenue + ` AS revenue,
			` + lifetimeROI + ` AS roi
		FROM ad_performance
		WHERE ` + lifetimeSpend + ` >= $1
		ORDER BY roi DESC, fb_ad_id
		LIMIT $2`

	rows, err := db.QueryContext(ctx, query, minSpend, limit)
	if err != nil {
		return nil, fmt.Errorf("query top ads: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []AdMetrics
	for rows.Next() {
		var a AdMetrics
		var f models.Flags
		if err := rows.Scan(&a.FBAdID, &a.AdName, &a.Vertical,
			&f.FBIsActive, &f.IsHook, &f.HasHooksCreated, &f.IsScaled, &f.HasScaled,
			&a.Spend, &a.Revenue, &a.ROI); err != nil {
			return nil, fmt.Errorf("scan top ad: %w", err)
		}
		a.Phase = models.LifecycleFromFlags(f).Phase()
		out = append(out, a)
	}
	return out, rows.Err()
}
