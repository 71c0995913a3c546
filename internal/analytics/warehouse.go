// Package analytics reads per-ad spend and revenue windows from the data
// warehouse and rebuilds those window tables from daily stats.
package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/models"
)

// Supported warehouse drivers.
const (
	DriverClickHouse = "clickhouse"
	DriverSnowflake  = "snowflake"
)

// ErrUnavailable is returned when no warehouse connection is configured.
var ErrUnavailable = errors.New("warehouse unavailable")

var tableNameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Tables names the warehouse tables used for metrics.
type Tables struct {
	DailyStats string
	Last3Days  string
	Last7Days  string
	Lifetime   string
}

// ForWindow returns the table holding the given window.
func (t Tables) ForWindow(w models.Window) (string, error) {
	switch w {
	case models.WindowLast3Days:
		return t.Last3Days, nil
	case models.WindowLast7Days:
		return t.Last7Days, nil
	case models.WindowLifetime:
		return t.Lifetime, nil
	}
	return "", fmt.Errorf("unknown window %q", w)
}

// Validate rejects table names that are not plain (optionally qualified) identifiers.
// Table names are interpolated into SQL, so this must pass before any query.
func (t Tables) Validate() error {
	for _, name := range []string{t.DailyStats, t.Last3Days, t.Last7Days, t.Lifetime} {
		if !tableNameRE.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// PoolConfig holds connection pooling settings.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Warehouse wraps the warehouse DB connection.
type Warehouse struct {
	DB     *sql.DB
	Driver string
	Tables Tables
}

// InitWarehouse connects to the warehouse with the given driver. For
// ClickHouse the daily and window tables are created if missing.
func InitWarehouse(driver, dsn string, tables Tables, pool PoolConfig) (*Warehouse, error) {
	if driver != DriverClickHouse && driver != DriverSnowflake {
		return nil, fmt.Errorf("unsupported warehouse driver %q", driver)
	}
	if err := tables.Validate(); err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s open: %w", driver, err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s ping: %w", driver, err)
	}
	w := &Warehouse{DB: db, Driver: driver, Tables: tables}
	if driver == DriverClickHouse {
		if err := w.ensureSchema(context.Background()); err != nil {
			return nil, err
		}
	}
	zap.L().Info("Connected to warehouse", zap.String("driver", driver))
	return w, nil
}

func (w *Warehouse) ensureSchema(ctx context.Context) error {
	daily := `CREATE TABLE IF NOT EXISTS ` + w.Tables.DailyStats + ` (
        date     Date,
        platform String,
        ad_id    String,
        cost     Float64,
        revenue  Float64,
        leads    Int64,
        clicks   Int64
    ) ENGINE = MergeTree()
    ORDER BY (date, platform, ad_id)`
	if _, err := w.DB.ExecContext(ctx, daily); err != nil {
		return fmt.Errorf("create %s: %w", w.Tables.DailyStats, err)
	}
	for _, table := range []string{w.Tables.Last3Days, w.Tables.Last7Days, w.Tables.Lifetime} {
		stmt := `CREATE TABLE IF NOT EXISTS ` + table + ` (
            platform      String,
            ad_id         String,
            total_cost    Float64,
            total_revenue Float64,
            roi           Float64,
            leads         Int64,
            clicks        Int64
        ) ENGINE = MergeTree()
        ORDER BY (platform, ad_id)`
		if _, err := w.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

// Query returns every row of the window table.
func (w *Warehouse) Query(ctx context.Context, window models.Window) ([]models.MetricRow, error) {
	if w == nil || w.DB == nil {
		return nil, ErrUnavailable
	}
	table, err := w.Tables.ForWindow(window)
	if err != nil {
		return nil, err
	}
	rows, err := w.DB.QueryContext(ctx,
		`SELECT platform, ad_id, total_cost, total_revenue, roi, leads, clicks FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []models.MetricRow
	for rows.Next() {
		var r models.MetricRow
		if err := rows.Scan(&r.Platform, &r.AdID, &r.TotalCost, &r.TotalRevenue, &r.ROI, &r.Leads, &r.Clicks); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// Close shuts down the warehouse connection.
func (w *Warehouse) Close() {
	if w != nil && w.DB != nil {
		if err := w.DB.Close(); err != nil {
			zap.L().Error("warehouse close", zap.Error(err))
		}
	}
}
