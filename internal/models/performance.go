package models

import "time"

// Platform tags used by the warehouse rows and the performance metrics map.
const (
	PlatformFacebook = "fb"
	PlatformGoogle   = "ga"

	// WarehousePlatformFacebook is the tag the warehouse uses on Facebook rows.
	WarehousePlatformFacebook = "FB"
)

// Window identifies one of the fixed attribution windows reported by the warehouse.
type Window string

const (
	WindowLast3Days Window = "last3Days"
	WindowLast7Days Window = "last7Days"
	WindowLifetime  Window = "lifetime"
)

// Windows lists the attribution windows in the order they are queried.
var Windows = []Window{WindowLast3Days, WindowLast7Days, WindowLifetime}

// WindowMetrics is the performance tuple for a single attribution window.
type WindowMetrics struct {
	Spend   float64 `json:"spend"`
	Revenue float64 `json:"revenue"`
	ROI     float64 `json:"roi"`
	Leads   int64   `json:"leads"`
	Clicks  int64   `json:"clicks"`
}

// PlatformMetrics groups the three attribution windows for one platform.
type PlatformMetrics struct {
	Last3Days WindowMetrics `json:"last3Days"`
	Last7Days WindowMetrics `json:"last7Days"`
	Lifetime  WindowMetrics `json:"lifetime"`
}

// Window returns the metrics for w. Unknown windows yield zero metrics.
func (p PlatformMetrics) Window(w Window) WindowMetrics {
	switch w {
	case WindowLast3Days:
		return p.Last3Days
	case WindowLast7Days:
		return p.Last7Days
	case WindowLifetime:
		return p.Lifetime
	default:
		return WindowMetrics{}
	}
}

// PerformanceMetrics maps platforms to their windowed metrics. Facebook is always
// present; Google Analytics is only set when a source provides it.
type PerformanceMetrics struct {
	FB PlatformMetrics  `json:"fb"`
	GA *PlatformMetrics `json:"ga,omitempty"`
}

// AdPerformance is the stored state of a single Facebook ad: identity, creative
// lineage, the latest warehouse metrics and its lifecycle.
type AdPerformance struct {
	FBAdID              string `json:"fbAdId"`
	FBAdSetID           string `json:"fbAdSetId"`
	FBCampaignID        string `json:"fbCampaignId"`
	FBAccountID         string `json:"fbAccountId"`
	FBScalingCampaignID string `json:"fbScalingCampaignId,omitempty"`

	AdName            string `json:"adName"`
	Vertical          string `json:"vertical"`
	GDriveDownloadURL string `json:"gDriveDownloadUrl"`
	IdeaWriter        string `json:"ideaWriter,omitempty"`
	ScriptWriter      string `json:"scriptWriter,omitempty"`
	HookWriter        string `json:"hookWriter,omitempty"`

	PerformanceMetrics PerformanceMetrics `json:"performanceMetrics"`

	// Lifecycle is persisted as the five legacy flags; see Flags.
	Lifecycle Lifecycle `json:"-"`

	Counter int64 `json:"counter"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LifetimeSpend is the Facebook spend over the lifetime window.
func (a *AdPerformance) LifetimeSpend() float64 {
	return a.PerformanceMetrics.FB.Lifetime.Spend
}

// LifetimeROI is the Facebook ROI over the lifetime window.
func (a *AdPerformance) LifetimeROI() float64 {
	return a.PerformanceMetrics.FB.Lifetime.ROI
}

// Last3DaysROI is the Facebook ROI over the trailing three days.
func (a *AdPerformance) Last3DaysROI() float64 {
	return a.PerformanceMetrics.FB.Last3Days.ROI
}

// Clone returns a copy of the record that shares no mutable state with a.
func (a *AdPerformance) Clone() *AdPerformance {
	c := *a
	if a.PerformanceMetrics.GA != nil {
		ga := *a.PerformanceMetrics.GA
		c.PerformanceMetrics.GA = &ga
	}
	return &c
}

// MetricRow is one row returned by the warehouse for a given window.
type MetricRow struct {
	Platform     string  `json:"platform"`
	AdID         string  `json:"adId"`
	TotalCost    float64 `json:"totalCost"`
	TotalRevenue float64 `json:"totalRevenue"`
	ROI          float64 `json:"roi"`
	Leads        int64   `json:"leads"`
	Clicks       int64   `json:"clicks"`
}
