package models

import "time"

// NewHookRecord derives the record for a hook variant of parent. The variant
// inherits the creative lineage, gets fresh platform ids and starts active with
// cleared metrics. It can be scaled later but never spawns hooks of its own.
func NewHookRecord(parent *AdPerformance, adID, adSetID, adName, videoURL string, counter int64, now time.Time) *AdPerformance {
	rec := parent.Clone()
	rec.FBAdID = adID
	rec.FBAdSetID = adSetID
	rec.AdName = adName
	if videoURL != "" {
		rec.GDriveDownloadURL = videoURL
	}
	rec.PerformanceMetrics = PerformanceMetrics{}
	rec.Lifecycle = Lifecycle{
		Activity: ActivityActive,
		Hooks:    HookNotApplicable,
		Scale:    ScalePending,
	}
	rec.Counter = counter
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec
}

// NewScaledRecord derives the record for the duplicate of source created in
// campaignID. A hook source stays a hook; everything else starts fresh.
func NewScaledRecord(source *AdPerformance, adID, adSetID, campaignID string, now time.Time) *AdPerformance {
	rec := source.Clone()
	rec.FBAdID = adID
	rec.FBAdSetID = adSetID
	rec.FBCampaignID = campaignID
	rec.PerformanceMetrics = PerformanceMetrics{}
	hooks := HookPending
	if source.Lifecycle.Hooks == HookNotApplicable {
		hooks = HookNotApplicable
	}
	rec.Lifecycle = Lifecycle{
		Activity: ActivityActive,
		Hooks:    hooks,
		Scale:    ScaleNotApplicable,
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return rec
}
