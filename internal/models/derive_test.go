package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func parentAd() *AdPerformance {
	return &AdPerformance{
		FBAdID:            "100",
		FBAdSetID:         "as100",
		FBCampaignID:      "c1",
		FBAccountID:       "act_1",
		AdName:            "hero",
		Vertical:          "auto",
		GDriveDownloadURL: "https://drive/base.mp4",
		IdeaWriter:        "ava",
		PerformanceMetrics: PerformanceMetrics{FB: PlatformMetrics{
			Lifetime: WindowMetrics{Spend: 300, ROI: 2},
		}},
		Lifecycle: Lifecycle{Hooks: HookDone},
		Counter:   3,
	}
}

func TestNewHookRecord(t *testing.T) {
	now := time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC)
	parent := parentAd()
	rec := NewHookRecord(parent, "200", "as200", "hero-H4-shock", "https://cdn/r.mp4", 4, now)

	assert.Equal(t, "200", rec.FBAdID)
	assert.Equal(t, "as200", rec.FBAdSetID)
	assert.Equal(t, "c1", rec.FBCampaignID)
	assert.Equal(t, "ava", rec.IdeaWriter)
	assert.Equal(t, "https://cdn/r.mp4", rec.GDriveDownloadURL)
	assert.Equal(t, PerformanceMetrics{}, rec.PerformanceMetrics)
	assert.Equal(t, Lifecycle{Hooks: HookNotApplicable}, rec.Lifecycle)
	assert.Equal(t, int64(4), rec.Counter)
	assert.Equal(t, now, rec.CreatedAt)

	assert.Equal(t, "100", parent.FBAdID, "parent is untouched")
	assert.Equal(t, 300.0, parent.LifetimeSpend())
}

func TestNewScaledRecord(t *testing.T) {
	now := time.Date(2026, 10, 16, 11, 0, 0, 0, time.UTC)

	rec := NewScaledRecord(parentAd(), "300", "as300", "scale1", now)
	assert.Equal(t, "scale1", rec.FBCampaignID)
	assert.Equal(t, Lifecycle{Scale: ScaleNotApplicable}, rec.Lifecycle)
	assert.Equal(t, PerformanceMetrics{}, rec.PerformanceMetrics)

	hook := parentAd()
	hook.Lifecycle = Lifecycle{Hooks: HookNotApplicable, Scale: ScaleDone}
	rec = NewScaledRecord(hook, "301", "as301", "scale1", now)
	assert.Equal(t, Lifecycle{Hooks: HookNotApplicable, Scale: ScaleNotApplicable}, rec.Lifecycle)
}
