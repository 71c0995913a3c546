package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/db"
	"github.com/patrickwarner/creativeloop/internal/logic"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/reporting"
)

func seedStore(t *testing.T) *db.MemoryStore {
	t.Helper()
	store := db.NewMemoryStore()
	ads := []*models.AdPerformance{
		{FBAdID: "1", AdName: "winner", Vertical: "Auto",
			PerformanceMetrics: models.PerformanceMetrics{FB: models.PlatformMetrics{
				Lifetime:  models.WindowMetrics{Spend: 300, ROI: 2.1},
				Last3Days: models.WindowMetrics{Spend: 80, ROI: 1.6},
			}}},
		{FBAdID: "2", AdName: "loser", Vertical: "home",
			PerformanceMetrics: models.PerformanceMetrics{FB: models.PlatformMetrics{
				Lifetime:  models.WindowMetrics{Spend: 120, ROI: 0.4},
				Last3Days: models.WindowMetrics{Spend: 30, ROI: 0.2},
			}}},
		{FBAdID: "3", AdName: "stopped", Vertical: "auto",
			Lifecycle: models.Lifecycle{Activity: models.ActivityPaused}},
	}
	for _, ad := range ads {
		require.NoError(t, store.Save(context.Background(), ad))
	}
	return store
}

func newServer(t *testing.T) *CreativeServer {
	return &CreativeServer{ads: seedStore(t), thresholds: logic.DefaultThresholds(), logger: zap.NewNop()}
}

func TestListAdPerformance_Filters(t *testing.T) {
	s := newServer(t)

	_, out, err := s.ListAdPerformance(context.Background(), nil, ListAdsInput{})
	require.NoError(t, err)
	assert.Len(t, out.Ads, 3)

	_, out, err = s.ListAdPerformance(context.Background(), nil, ListAdsInput{ActiveOnly: true, Vertical: "AUTO"})
	require.NoError(t, err)
	require.Len(t, out.Ads, 1)
	assert.Equal(t, "1", out.Ads[0].AdID)
	assert.Equal(t, string(models.PhaseActiveUnevaluated), out.Ads[0].Phase)

	_, out, err = s.ListAdPerformance(context.Background(), nil, ListAdsInput{MinSpend: 200})
	require.NoError(t, err)
	require.Len(t, out.Ads, 1)
	assert.Equal(t, 300.0, out.Ads[0].LifetimeSpend)
}

func TestEvaluateAd(t *testing.T) {
	s := newServer(t)

	_, out, err := s.EvaluateAd(context.Background(), nil, EvaluateAdInput{AdID: "2"})
	require.NoError(t, err)
	assert.Equal(t, string(logic.DecisionPause), out.Decision)
	assert.False(t, out.CreateHooks)

	_, out, err = s.EvaluateAd(context.Background(), nil, EvaluateAdInput{AdID: "3"})
	require.NoError(t, err)
	assert.Equal(t, string(logic.DecisionSkipInactive), out.Decision)

	_, _, err = s.EvaluateAd(context.Background(), nil, EvaluateAdInput{AdID: "missing"})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, _, err = s.EvaluateAd(context.Background(), nil, EvaluateAdInput{})
	assert.Error(t, err)
}

func TestPerformanceReport(t *testing.T) {
	s := newServer(t)
	_, _, err := s.PerformanceReport(context.Background(), nil, ReportInput{})
	assert.Error(t, err)

	generated := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	s.report = func(context.Context) (*reporting.Summary, error) {
		return &reporting.Summary{
			GeneratedAt: generated,
			TotalAds:    3,
			Phases:      map[models.Phase]int64{models.PhasePaused: 1, models.PhaseActiveUnevaluated: 2},
		}, nil
	}
	_, out, err := s.PerformanceReport(context.Background(), nil, ReportInput{})
	require.NoError(t, err)
	assert.Equal(t, "2026-10-16T09:00:00Z", out.GeneratedAt)
	assert.Equal(t, int64(1), out.Phases["PAUSED"])
	assert.Equal(t, int64(2), out.Phases["ACTIVE_UNEVALUATED"])

	s.report = func(context.Context) (*reporting.Summary, error) { return nil, errors.New("db down") }
	_, _, err = s.PerformanceReport(context.Background(), nil, ReportInput{})
	assert.ErrorContains(t, err, "db down")
}
