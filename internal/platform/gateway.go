// Package platform wraps the Facebook Marketing (Graph) API calls the decision
// engine needs: ad set, video, creative and ad creation, status and budget
// updates, and ad set duplication.
package platform

import (
	"context"
	"time"
)

// AdSetStatus is the delivery status of an ad set.
type AdSetStatus string

const (
	StatusActive AdSetStatus = "ACTIVE"
	StatusPaused AdSetStatus = "PAUSED"
)

// AdSetSpec describes an ad set to create.
type AdSetSpec struct {
	Name             string
	CampaignID       string
	DailyBudget      int64 // cents
	Status           AdSetStatus
	OptimizationGoal string
	BillingEvent     string
	StartTime        time.Time
}

// CreativeSpec describes a video ad creative.
type CreativeSpec struct {
	Name    string
	VideoID string
	PageID  string
	LinkURL string
	Message string
	Title   string
}

// AdSpec describes an ad linking a creative to an ad set.
type AdSpec struct {
	Name       string
	AdSetID    string
	CreativeID string
	Status     AdSetStatus
}

// Ad is the subset of ad fields read back from the platform.
type Ad struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	AdSetID string `json:"adset_id"`
	Status  string `json:"status"`
}

// Gateway is the set of ad platform operations used by the decision engine.
// Implementations are bound to a single ad account.
type Gateway interface {
	AccountID() string
	CreateAdSet(ctx context.Context, spec AdSetSpec) (string, error)
	UploadAdVideo(ctx context.Context, fileURL, name string) (string, error)
	CreateAdCreative(ctx context.Context, spec CreativeSpec) (string, error)
	CreateAd(ctx context.Context, spec AdSpec) (string, error)
	UpdateAdSetStatus(ctx context.Context, adSetID string, status AdSetStatus) error
	UpdateAdSetBudget(ctx context.Context, adSetID string, dailyBudget int64) error
	GetAdSetIDFromAdID(ctx context.Context, adID string) (string, error)
	DuplicateAdSet(ctx context.Context, adSetID, campaignID string, start time.Time) (string, error)
	GetAdsInAdSet(ctx context.Context, adSetID string) ([]Ad, error)
}
