package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/logic"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/reporting"
)

// AdReader is the read side of the performance store.
type AdReader interface {
	List(ctx context.Context, activeOnly bool) ([]*models.AdPerformance, error)
	Get(ctx context.Context, adID string) (*models.AdPerformance, error)
}

// ListAdsInput filters the list_ad_performance tool.
type ListAdsInput struct {
	ActiveOnly bool    `json:"active_only,omitempty" jsonschema:"only return ads that are still delivering"`
	Vertical   string  `json:"vertical,omitempty" jsonschema:"only return ads in this vertical (case-insensitive)"`
	MinSpend   float64 `json:"min_spend,omitempty" jsonschema:"minimum lifetime Facebook spend"`
}

// AdSummary is the flattened view of a record returned by the tools.
type AdSummary struct {
	AdID          string  `json:"ad_id"`
	AdSetID       string  `json:"ad_set_id"`
	CampaignID    string  `json:"campaign_id"`
	AccountID     string  `json:"account_id"`
	AdName        string  `json:"ad_name"`
	Vertical      string  `json:"vertical"`
	Phase         string  `json:"phase"`
	IsHook        bool    `json:"is_hook"`
	IsScaled      bool    `json:"is_scaled"`
	LifetimeSpend float64 `json:"lifetime_spend"`
	LifetimeROI   float64 `json:"lifetime_roi"`
	Last3DaysROI  float64 `json:"last_3_days_roi"`
}

type ListAdsOutput struct {
	Ads []AdSummary `json:"ads"`
}

type EvaluateAdInput struct {
	AdID string `json:"ad_id" jsonschema:"Facebook ad id to evaluate"`
}

// EvaluateAdOutput is the plan the engine would apply to the ad on its next run.
type EvaluateAdOutput struct {
	Ad          AdSummary `json:"ad"`
	Decision    string    `json:"decision"`
	Reason      string    `json:"reason"`
	CreateCard  bool      `json:"create_card"`
	CreateHooks bool      `json:"create_hooks"`
	Scale       bool      `json:"scale"`
}

type ReportInput struct{}

type ReportOutput struct {
	GeneratedAt string                      `json:"generated_at"`
	TotalAds    int64                       `json:"total_ads"`
	Phases      map[string]int64            `json:"phases"`
	Verticals   []reporting.VerticalMetrics `json:"verticals"`
	TopAds      []reporting.AdMetrics       `json:"top_ads"`
}

// CreativeServer holds the MCP tool dependencies.
type CreativeServer struct {
	ads        AdReader
	report     func(ctx context.Context) (*reporting.Summary, error)
	thresholds logic.Thresholds
	logger     *zap.Logger
}

func summarize(ad *models.AdPerformance) AdSummary {
	return AdSummary{
		AdID:          ad.FBAdID,
		AdSetID:       ad.FBAdSetID,
		CampaignID:    ad.FBCampaignID,
		AccountID:     ad.FBAccountID,
		AdName:        ad.AdName,
		Vertical:      ad.Vertical,
		Phase:         string(ad.Lifecycle.Phase()),
		IsHook:        ad.Lifecycle.Hooks == models.HookNotApplicable,
		IsScaled:      ad.Lifecycle.Scale == models.ScaleNotApplicable,
		LifetimeSpend: ad.LifetimeSpend(),
		LifetimeROI:   ad.LifetimeROI(),
		Last3DaysROI:  ad.Last3DaysROI(),
	}
}

// ListAdPerformance implements the list_ad_performance tool.
func (s *CreativeServer) ListAdPerformance(ctx context.Context, _ *mcp.CallToolRequest, input ListAdsInput) (*mcp.CallToolResult, ListAdsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	ads, err := s.ads.List(ctx, input.ActiveOnly)
	if err != nil {
		return nil, ListAdsOutput{}, fmt.Errorf("list ads: %w", err)
	}
	out := ListAdsOutput{Ads: []AdSummary{}}
	for _, ad := range ads {
		if input.Vertical != "" && !strings.EqualFold(ad.Vertical, input.Vertical) {
			continue
		}
		if ad.LifetimeSpend() < input.MinSpend {
			continue
		}
		out.Ads = append(out.Ads, summarize(ad))
	}
	s.logger.Info("listed ad performance",
		zap.Bool("active_only", input.ActiveOnly),
		zap.String("vertical", input.Vertical),
		zap.Int("ads", len(out.Ads)))
	return nil, out, nil
}

// EvaluateAd implements the evaluate_ad tool. It never mutates the record.
func (s *CreativeServer) EvaluateAd(ctx context.Context, _ *mcp.CallToolRequest, input EvaluateAdInput) (*mcp.CallToolResult, EvaluateAdOutput, error) {
	if input.AdID == "" {
		return nil, EvaluateAdOutput{}, errors.New("ad_id is required")
	}
	ad, err := s.ads.Get(ctx, input.AdID)
	if err != nil {
		return nil, EvaluateAdOutput{}, fmt.Errorf("get ad %s: %w", input.AdID, err)
	}
	plan := logic.Classify(ad, s.thresholds)
	return nil, EvaluateAdOutput{
		Ad:          summarize(ad),
		Decision:    string(plan.Decision),
		Reason:      plan.Reason,
		CreateCard:  plan.CreateCard,
		CreateHooks: plan.CreateHooks,
		Scale:       plan.Scale,
	}, nil
}

// PerformanceReport implements the performance_report tool.
func (s *CreativeServer) PerformanceReport(ctx context.Context, _ *mcp.CallToolRequest, _ ReportInput) (*mcp.CallToolResult, ReportOutput, error) {
	if s.report == nil {
		return nil, ReportOutput{}, errors.New("reporting is not configured")
	}
	summary, err := s.report(ctx)
	if err != nil {
		return nil, ReportOutput{}, fmt.Errorf("generate report: %w", err)
	}
	out := ReportOutput{
		GeneratedAt: summary.GeneratedAt.Format(time.RFC3339),
		TotalAds:    summary.TotalAds,
		Phases:      make(map[string]int64, len(summary.Phases)),
		Verticals:   summary.Verticals,
		TopAds:      summary.TopAds,
	}
	for phase, n := range summary.Phases {
		out.Phases[string(phase)] = n
	}
	return nil, out, nil
}

// register adds the tools to server.
func (s *CreativeServer) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_ad_performance",
		Description: "List stored Facebook ad performance records with their lifecycle phase",
	}, s.ListAdPerformance)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_ad",
		Description: "Show the decision the lifecycle engine would make for an ad, without acting on it",
	}, s.EvaluateAd)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "performance_report",
		Description: "Summarize ads per lifecycle phase, lifetime performance per vertical and the top ads by ROI",
	}, s.PerformanceReport)
}
