package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/httpretry"
	"github.com/patrickwarner/creativeloop/internal/observability"
	"github.com/patrickwarner/creativeloop/internal/platform/ratelimit"
)

// ClientConfig holds the settings shared by all account clients.
type ClientConfig struct {
	BaseURL    string
	APIVersion string
	Timeout    time.Duration
	MaxRetries int
}

// Client is a Gateway backed by the Graph API for one ad account.
type Client struct {
	accountID  string
	token      string
	baseURL    string
	httpClient httpretry.HTTPDoer
	limiter    *ratelimit.AccountLimiter
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// NewClient creates a Graph API client for accountID. The account id may be
// given with or without the "act_" prefix.
func NewClient(cfg ClientConfig, accountID, token string, limiter *ratelimit.AccountLimiter, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Client{
		accountID:  strings.TrimPrefix(accountID, "act_"),
		token:      token,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/") + "/" + cfg.APIVersion,
		httpClient: httpretry.NewRetryClient(httpClient, cfg.MaxRetries, httpretry.WithLogger(logger)),
		limiter:    limiter,
		logger:     logger.With(zap.String("fb_account_id", accountID)),
		metrics:    metrics,
	}
}

// AccountID returns the ad account id without the "act_" prefix.
func (c *Client) AccountID() string { return c.accountID }

type idResponse struct {
	ID string `json:"id"`
}

// CreateAdSet creates an ad set in the account.
func (c *Client) CreateAdSet(ctx context.Context, spec AdSetSpec) (string, error) {
	form := url.Values{}
	form.Set("name", spec.Name)
	form.Set("campaign_id", spec.CampaignID)
	form.Set("daily_budget", strconv.FormatInt(spec.DailyBudget, 10))
	form.Set("status", string(orDefault(spec.Status, StatusActive)))
	form.Set("billing_event", orDefault(spec.BillingEvent, "IMPRESSIONS"))
	form.Set("optimization_goal", orDefault(spec.OptimizationGoal, "OFFSITE_CONVERSIONS"))
	if !spec.StartTime.IsZero() {
		form.Set("start_time", spec.StartTime.Format(time.RFC3339))
	}
	var out idResponse
	if err := c.do(ctx, "create_adset", http.MethodPost, c.accountPath("adsets"), form, &out); err != nil {
		return "", fmt.Errorf("create ad set %q: %w", spec.Name, err)
	}
	return out.ID, nil
}

// UploadAdVideo registers a video with the account by URL.
func (c *Client) UploadAdVideo(ctx context.Context, fileURL, name string) (string, error) {
	form := url.Values{}
	form.Set("file_url", fileURL)
	form.Set("name", name)
	var out idResponse
	if err := c.do(ctx, "upload_video", http.MethodPost, c.accountPath("advideos"), form, &out); err != nil {
		return "", fmt.Errorf("upload video %q: %w", name, err)
	}
	return out.ID, nil
}

// CreateAdCreative creates a video creative.
func (c *Client) CreateAdCreative(ctx context.Context, spec CreativeSpec) (string, error) {
	story := map[string]any{
		"page_id": spec.PageID,
		"video_data": map[string]any{
			"video_id": spec.VideoID,
			"message":  spec.Message,
			"title":    spec.Title,
			"call_to_action": map[string]any{
				"type":  "LEARN_MORE",
				"value": map[string]string{"link": spec.LinkURL},
			},
		},
	}
	storyJSON, err := json.Marshal(story)
	if err != nil {
		return "", fmt.Errorf("marshal object story spec: %w", err)
	}
	form := url.Values{}
	form.Set("name", spec.Name)
	form.Set("object_story_spec", string(storyJSON))
	var out idResponse
	if err := c.do(ctx, "create_creative", http.MethodPost, c.accountPath("adcreatives"), form, &out); err != nil {
		return "", fmt.Errorf("create creative %q: %w", spec.Name, err)
	}
	return out.ID, nil
}

// CreateAd creates an ad from an existing creative.
func (c *Client) CreateAd(ctx context.Context, spec AdSpec) (string, error) {
	form := url.Values{}
	form.Set("name", spec.Name)
	form.Set("adset_id", spec.AdSetID)
	form.Set("creative", fmt.Sprintf(`{"creative_id":%q}`, spec.CreativeID))
	form.Set("status", string(orDefault(spec.Status, StatusActive)))
	var out idResponse
	if err := c.do(ctx, "create_ad", http.MethodPost, c.accountPath("ads"), form, &out); err != nil {
		return "", fmt.Errorf("create ad %q: %w", spec.Name, err)
	}
	return out.ID, nil
}

// UpdateAdSetStatus sets the delivery status of an ad set.
func (c *Client) UpdateAdSetStatus(ctx context.Context, adSetID string, status AdSetStatus) error {
	form := url.Values{}
	form.Set("status", string(status))
	if err := c.do(ctx, "update_adset_status", http.MethodPost, "/"+adSetID, form, nil); err != nil {
		return fmt.Errorf("set ad set %s status %s: %w", adSetID, status, err)
	}
	return nil
}

// UpdateAdSetBudget sets the daily budget of an ad set, in cents.
func (c *Client) UpdateAdSetBudget(ctx context.Context, adSetID string, dailyBudget int64) error {
	form := url.Values{}
	form.Set("daily_budget", strconv.FormatInt(dailyBudget, 10))
	if err := c.do(ctx, "update_adset_budget", http.MethodPost, "/"+adSetID, form, nil); err != nil {
		return fmt.Errorf("set ad set %s budget: %w", adSetID, err)
	}
	return nil
}

// GetAdSetIDFromAdID resolves the ad set that contains adID.
func (c *Client) GetAdSetIDFromAdID(ctx context.Context, adID string) (string, error) {
	q := url.Values{}
	q.Set("fields", "adset_id")
	var out Ad
	if err := c.do(ctx, "get_ad", http.MethodGet, "/"+adID+"?"+q.Encode(), nil, &out); err != nil {
		return "", fmt.Errorf("get ad %s: %w", adID, err)
	}
	if out.AdSetID == "" {
		return "", fmt.Errorf("get ad %s: empty adset_id", adID)
	}
	return out.AdSetID, nil
}

// DuplicateAdSet deep copies an ad set into campaignID. The copy keeps its name,
// is forced ACTIVE and starts at start.
func (c *Client) DuplicateAdSet(ctx context.Context, adSetID, campaignID string, start time.Time) (string, error) {
	form := url.Values{}
	form.Set("campaign_id", campaignID)
	form.Set("deep_copy", "true")
	form.Set("status_option", string(StatusActive))
	form.Set("start_time", start.Format(time.RFC3339))
	var out struct {
		CopiedAdSetID string `json:"copied_adset_id"`
	}
	if err := c.do(ctx, "duplicate_adset", http.MethodPost, "/"+adSetID+"/copies", form, &out); err != nil {
		return "", fmt.Errorf("duplicate ad set %s: %w", adSetID, err)
	}
	if out.CopiedAdSetID == "" {
		return "", fmt.Errorf("duplicate ad set %s: empty copied_adset_id", adSetID)
	}
	return out.CopiedAdSetID, nil
}

// GetAdsInAdSet lists the ads in an ad set.
func (c *Client) GetAdsInAdSet(ctx context.Context, adSetID string) ([]Ad, error) {
	q := url.Values{}
	q.Set("fields", "id,name,adset_id,status")
	var out struct {
		Data []Ad `json:"data"`
	}
	if err := c.do(ctx, "list_ads", http.MethodGet, "/"+adSetID+"/ads?"+q.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("list ads in ad set %s: %w", adSetID, err)
	}
	return out.Data, nil
}

func (c *Client) accountPath(edge string) string {
	return "/act_" + c.accountID + "/" + edge
}

// do performs one Graph API call after waiting on the account rate limiter.
// A nil out discards the response body.
func (c *Client) do(ctx context.Context, op, method, path string, form url.Values, out any) (err error) {
	start := time.Now()
	outcome := "success"
	defer func() {
		if err != nil {
			outcome = "failure"
		}
		c.metrics.RecordGatewayLatency(op, time.Since(start))
		c.metrics.IncrementGatewayRequests(op, outcome)
	}()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, c.accountID); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("failed to close response body", zap.Error(cerr))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var envelope struct {
			Error *APIError `json:"error"`
		}
		if jerr := json.Unmarshal(data, &envelope); jerr == nil && envelope.Error != nil {
			envelope.Error.StatusCode = resp.StatusCode
			return envelope.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	c.logger.Debug("graph api call",
		zap.String("operation", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func orDefault[T ~string](v, def T) T {
	if v == "" {
		return def
	}
	return v
}
