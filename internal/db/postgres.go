package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/models"
)

// Postgres wraps a postgres DB connection.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS ad_performance (
    fb_ad_id TEXT PRIMARY KEY,
    fb_ad_set_id TEXT NOT NULL DEFAULT '',
    fb_campaign_id TEXT NOT NULL DEFAULT '',
    fb_account_id TEXT NOT NULL DEFAULT '',
    fb_scaling_campaign_id TEXT NOT NULL DEFAULT '',
    ad_name TEXT NOT NULL DEFAULT '',
    vertical TEXT NOT NULL DEFAULT '',
    gdrive_download_url TEXT NOT NULL DEFAULT '',
    idea_writer TEXT NOT NULL DEFAULT '',
    script_writer TEXT NOT NULL DEFAULT '',
    hook_writer TEXT NOT NULL DEFAULT '',
    performance_metrics JSONB NOT NULL DEFAULT '{}',
    fb_is_active BOOLEAN NOT NULL DEFAULT FALSE,
    is_hook BOOLEAN NOT NULL DEFAULT FALSE,
    has_hooks_created BOOLEAN NOT NULL DEFAULT FALSE,
    is_scaled BOOLEAN NOT NULL DEFAULT FALSE,
    has_scaled BOOLEAN NOT NULL DEFAULT FALSE,
    counter BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS hook_clips (
    name TEXT PRIMARY KEY,
    url TEXT NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS counters (
    name TEXT PRIMARY KEY,
    value BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_ad_performance_active ON ad_performance (created_at, fb_ad_id) WHERE fb_is_active;
CREATE INDEX IF NOT EXISTS idx_ad_performance_vertical ON ad_performance (vertical);
`

const adColumns = `fb_ad_id, fb_ad_set_id, fb_campaign_id, fb_account_id, fb_scaling_campaign_id,
    ad_name, vertical, gdrive_download_url, idea_writer, script_writer, hook_writer,
    performance_metrics, fb_is_active, is_hook, has_hooks_created, is_scaled, has_scaled,
    counter, created_at, updated_at`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAd(s rowScanner) (*models.AdPerformance, error) {
	var ad models.AdPerformance
	var metrics []byte
	var f models.Flags
	if err := s.Scan(&ad.FBAdID, &ad.FBAdSetID, &ad.FBCampaignID, &ad.FBAccountID, &ad.FBScalingCampaignID,
		&ad.AdName, &ad.Vertical, &ad.GDriveDownloadURL, &ad.IdeaWriter, &ad.ScriptWriter, &ad.HookWriter,
		&metrics, &f.FBIsActive, &f.IsHook, &f.HasHooksCreated, &f.IsScaled, &f.HasScaled,
		&ad.Counter, &ad.CreatedAt, &ad.UpdatedAt); err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &ad.PerformanceMetrics); err != nil {
			return nil, fmt.Errorf("parse performance_metrics for %s: %w", ad.FBAdID, err)
		}
	}
	ad.Lifecycle = models.LifecycleFromFlags(f)
	return &ad, nil
}

func (p *Postgres) queryAds(ctx context.Context, query string, args ...any) ([]*models.AdPerformance, error) {
	rows, err := p.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ad performance: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var ads []*models.AdPerformance
	for rows.Next() {
		ad, err := scanAd(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ad performance: %w", err)
		}
		ads = append(ads, ad)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ads, nil
}

// GetAllActive returns every record with fbIsActive set, oldest first.
func (p *Postgres) GetAllActive(ctx context.Context) ([]*models.AdPerformance, error) {
	return p.queryAds(ctx, `SELECT `+adColumns+` FROM ad_performance WHERE fb_is_active ORDER BY created_at, fb_ad_id`)
}

// List returns all records, or only active ones when activeOnly is set.
func (p *Postgres) List(ctx context.Context, activeOnly bool) ([]*models.AdPerformance, error) {
	if activeOnly {
		return p.GetAllActive(ctx)
	}
	return p.queryAds(ctx, `SELECT `+adColumns+` FROM ad_performance ORDER BY created_at, fb_ad_id`)
}

// Get loads a single record by ad id.
func (p *Postgres) Get(ctx context.Context, adID string) (*models.AdPerformance, error) {
	row := p.DB.QueryRowContext(ctx, `SELECT `+adColumns+` FROM ad_performance WHERE fb_ad_id=$1`, adID)
	ad, err := scanAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get ad performance %s: %w", adID, err)
	}
	return ad, nil
}

// Save upserts the full record. Existing rows keep their created_at.
func (p *Postgres) Save(ctx context.Context, ad *models.AdPerformance) error {
	metrics, err := json.Marshal(ad.PerformanceMetrics)
	if err != nil {
		return fmt.Errorf("marshal performance metrics: %w", err)
	}
	created, updated := ad.CreatedAt, ad.UpdatedAt
	now := time.Now().UTC()
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = now
	}
	f := ad.Lifecycle.Flags()
	_, err = p.DB.ExecContext(ctx, `INSERT INTO ad_performance (`+adColumns+`)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
        ON CONFLICT (fb_ad_id) DO UPDATE SET
            fb_ad_set_id=EXCLUDED.fb_ad_set_id,
            fb_campaign_id=EXCLUDED.fb_campaign_id,
            fb_account_id=EXCLUDED.fb_account_id,
            fb_scaling_campaign_id=EXCLUDED.fb_scaling_campaign_id,
            ad_name=EXCLUDED.ad_name,
            vertical=EXCLUDED.vertical,
            gdrive_download_url=EXCLUDED.gdrive_download_url,
            idea_writer=EXCLUDED.idea_writer,
            script_writer=EXCLUDED.script_writer,
            hook_writer=EXCLUDED.hook_writer,
            performance_metrics=EXCLUDED.performance_metrics,
            fb_is_active=EXCLUDED.fb_is_active,
            is_hook=EXCLUDED.is_hook,
            has_hooks_created=EXCLUDED.has_hooks_created,
            is_scaled=EXCLUDED.is_scaled,
            has_scaled=EXCLUDED.has_scaled,
            counter=EXCLUDED.counter,
            updated_at=EXCLUDED.updated_at`,
		ad.FBAdID, ad.FBAdSetID, ad.FBCampaignID, ad.FBAccountID, ad.FBScalingCampaignID,
		ad.AdName, ad.Vertical, ad.GDriveDownloadURL, ad.IdeaWriter, ad.ScriptWriter, ad.HookWriter,
		metrics, f.FBIsActive, f.IsHook, f.HasHooksCreated, f.IsScaled, f.HasScaled,
		ad.Counter, created, updated)
	if err != nil {
		return fmt.Errorf("save ad performance %s: %w", ad.FBAdID, err)
	}
	return nil
}

// Delete removes a record. Deleting a missing record returns ErrNotFound.
func (p *Postgres) Delete(ctx context.Context, adID string) error {
	res, err := p.DB.ExecContext(ctx, `DELETE FROM ad_performance WHERE fb_ad_id=$1`, adID)
	if err != nil {
		return fmt.Errorf("delete ad performance %s: %w", adID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ad performance %s: %w", adID, err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// NextCounter increments the named counter inside a transaction and returns the new value.
func (p *Postgres) NextCounter(ctx context.Context, name string) (int64, error) {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin counter tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `INSERT INTO counters (name, value) VALUES ($1, 0) ON CONFLICT (name) DO NOTHING`, name); err != nil {
		return 0, fmt.Errorf("init counter %s: %w", name, err)
	}
	var value int64
	if err := tx.QueryRowContext(ctx, `SELECT value FROM counters WHERE name=$1 FOR UPDATE`, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("read counter %s: %w", name, err)
	}
	value++
	if _, err := tx.ExecContext(ctx, `UPDATE counters SET value=$1 WHERE name=$2`, value, name); err != nil {
		return 0, fmt.Errorf("update counter %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit counter %s: %w", name, err)
	}
	return value, nil
}

// ListHookClips returns the active hook clips ordered by name.
func (p *Postgres) ListHookClips(ctx context.Context) ([]models.HookClip, error) {
	rows, err := p.DB.QueryContext(ctx, `SELECT name, url, active FROM hook_clips WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query hook clips: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	var clips []models.HookClip
	for rows.Next() {
		var c models.HookClip
		if err := rows.Scan(&c.Name, &c.URL, &c.Active); err != nil {
			return nil, fmt.Errorf("scan hook clip: %w", err)
		}
		clips = append(clips, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return clips, nil
}

// UpsertHookClip inserts or updates a hook clip.
func (p *Postgres) UpsertHookClip(ctx context.Context, c models.HookClip) error {
	_, err := p.DB.ExecContext(ctx, `INSERT INTO hook_clips (name, url, active) VALUES ($1,$2,$3)
        ON CONFLICT (name) DO UPDATE SET url=EXCLUDED.url, active=EXCLUDED.active`, c.Name, c.URL, c.Active)
	if err != nil {
		return fmt.Errorf("upsert hook clip %s: %w", c.Name, err)
	}
	return nil
}
