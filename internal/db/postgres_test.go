package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/creativeloop/internal/models"
)

func newMockPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return &Postgres{DB: sqlDB}, mock
}

var adColumnNames = []string{
	"fb_ad_id", "fb_ad_set_id", "fb_campaign_id", "fb_account_id", "fb_scaling_campaign_id",
	"ad_name", "vertical", "gdrive_download_url", "idea_writer", "script_writer", "hook_writer",
	"performance_metrics", "fb_is_active", "is_hook", "has_hooks_created", "is_scaled", "has_scaled",
	"counter", "created_at", "updated_at",
}

func TestPostgres_GetAllActive(t *testing.T) {
	pg, mock := newMockPostgres(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	metrics, _ := json.Marshal(models.PerformanceMetrics{FB: models.PlatformMetrics{Lifetime: models.WindowMetrics{Spend: 50, ROI: 1.4}}})
	rows := sqlmock.NewRows(adColumnNames).
		AddRow("ad1", "as1", "c1", "acct", "", "Ad One", "auto", "https://drive/1", "", "", "", metrics,
			true, false, true, false, false, int64(3), now, now).
		AddRow("ad2", "as2", "c1", "acct", "", "Ad Two", "auto", "", "", "", "", []byte(`{}`),
			true, true, true, false, true, int64(0), now, now)
	mock.ExpectQuery("SELECT .* FROM ad_performance WHERE fb_is_active ORDER BY created_at").WillReturnRows(rows)

	ads, err := pg.GetAllActive(context.Background())
	require.NoError(t, err)
	require.Len(t, ads, 2)

	assert.Equal(t, 50.0, ads[0].LifetimeSpend())
	assert.Equal(t, models.HookDone, ads[0].Lifecycle.Hooks)
	assert.Equal(t, int64(3), ads[0].Counter)

	// contradictory flags are normalized on load
	assert.Equal(t, models.HookNotApplicable, ads[1].Lifecycle.Hooks)
	assert.Equal(t, models.ScaleDone, ads[1].Lifecycle.Scale)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Get_NotFound(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectQuery("SELECT .* FROM ad_performance WHERE fb_ad_id").
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	_, err := pg.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgres_Save(t *testing.T) {
	pg, mock := newMockPostgres(t)
	ad := &models.AdPerformance{
		FBAdID:    "ad1",
		FBAdSetID: "as1",
		AdName:    "Ad One",
		Lifecycle: models.Lifecycle{Activity: models.ActivityPaused, Scale: models.ScaleNotApplicable},
		Counter:   7,
	}
	mock.ExpectExec("INSERT INTO ad_performance .* ON CONFLICT \\(fb_ad_id\\) DO UPDATE").
		WithArgs("ad1", "as1", "", "", "", "Ad One", "", "", "", "", "", sqlmock.AnyArg(),
			false, false, false, true, false, int64(7), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, pg.Save(context.Background(), ad))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Delete(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectExec("DELETE FROM ad_performance").WithArgs("ad1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM ad_performance").WithArgs("ad2").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, pg.Delete(context.Background(), "ad1"))
	assert.ErrorIs(t, pg.Delete(context.Background(), "ad2"), models.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_NextCounter(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO counters").WithArgs("hooks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT value FROM counters WHERE name=\\$1 FOR UPDATE").
		WithArgs("hooks").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(41)))
	mock.ExpectExec("UPDATE counters SET value").WithArgs(int64(42), "hooks").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	v, err := pg.NextCounter(context.Background(), "hooks")
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_NextCounter_RollsBackOnError(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO counters").WithArgs("hooks").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT value FROM counters").WithArgs("hooks").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := pg.NextCounter(context.Background(), "hooks")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListHookClips(t *testing.T) {
	pg, mock := newMockPostgres(t)
	mock.ExpectQuery("SELECT name, url, active FROM hook_clips WHERE active").
		WillReturnRows(sqlmock.NewRows([]string{"name", "url", "active"}).
			AddRow("Question", "https://cdn/q.mp4", true).
			AddRow("Shock", "https://cdn/s.mp4", true))

	clips, err := pg.ListHookClips(context.Background())
	require.NoError(t, err)
	require.Len(t, clips, 2)
	assert.Equal(t, "Question", clips[0].Name)
}
