package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/facebookgo/clock"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
)

// windowDays is the number of trailing days, today included, in each bounded window.
var windowDays = map[models.Window]int{
	models.WindowLast3Days: 3,
	models.WindowLast7Days: 7,
}

// Aggregator rebuilds the window tables from the daily stats table.
type Aggregator struct {
	Warehouse *Warehouse
	Logger    *zap.Logger
	Metrics   observability.MetricsRegistry
	Clock     clock.Clock
}

// NewAggregator creates an Aggregator using the wall clock.
func NewAggregator(w *Warehouse, logger *zap.Logger, metrics observability.MetricsRegistry) *Aggregator {
	return &Aggregator{Warehouse: w, Logger: logger, Metrics: metrics, Clock: clock.New()}
}

// Refresh truncates and refills every window table. ROI is revenue over cost,
// and zero when there is no cost.
func (a *Aggregator) Refresh(ctx context.Context) (err error) {
	status := "success"
	defer func() {
		if err != nil {
			status = "failure"
		}
		a.Metrics.IncrementAggregationRuns(status)
	}()

	w := a.Warehouse
	if w == nil || w.DB == nil {
		return ErrUnavailable
	}
	today := a.Clock.Now().UTC().Truncate(24 * time.Hour)

	for _, window := range models.Windows {
		table, err := w.Tables.ForWindow(window)
		if err != nil {
			return err
		}
		if _, err := w.DB.ExecContext(ctx, `TRUNCATE TABLE `+table); err != nil {
			return fmt.Errorf("truncate %s: %w", table, err)
		}

		query := `INSERT INTO ` + table + ` (platform, ad_id, total_cost, total_revenue, roi, leads, clicks)
            SELECT platform, ad_id, SUM(cost), SUM(revenue),
                CASE WHEN SUM(cost) = 0 THEN 0 ELSE SUM(revenue) / SUM(cost) END,
                SUM(leads), SUM(clicks)
            FROM ` + w.Tables.DailyStats
		var args []any
		if days, ok := windowDays[window]; ok {
			query += ` WHERE date >= ?`
			args = append(args, today.AddDate(0, 0, -(days-1)))
		}
		query += ` GROUP BY platform, ad_id`

		if _, err := w.DB.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("rebuild %s: %w", table, err)
		}
		a.Logger.Debug("window table rebuilt", zap.String("window", string(window)), zap.String("table", table))
	}
	a.Logger.Info("metrics windows refreshed", zap.Time("as_of", today))
	return nil
}
