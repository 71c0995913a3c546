// Package render submits hook renders to Creatomate and waits for their
// webhook-delivered completion events.
package render

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/httpretry"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/token"
)

// ClipSource lists the hook clips available for rendering.
type ClipSource interface {
	ListHookClips(ctx context.Context) ([]models.HookClip, error)
}

// SignatureParam is the webhook query parameter carrying the render signature.
const SignatureParam = "sig"

// Template modification keys for the base video and hook elements.
const (
	BaseVideoElement = "Base-Video.source"
	HookVideoElement = "Hook-Video.source"
)

// Metadata is attached to each render and echoed back by the webhook.
type Metadata struct {
	BaseAdName string `json:"baseAdName"`
	HookName   string `json:"hookName"`
	FBAdID     string `json:"fbAdId"`
}

type renderRequest struct {
	TemplateID    string            `json:"template_id"`
	Modifications map[string]string `json:"modifications"`
	WebhookURL    string            `json:"webhook_url,omitempty"`
	Metadata      string            `json:"metadata"`
}

// Render is the render object returned by the API and posted to the webhook.
type Render struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	URL          string `json:"url,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Metadata     string `json:"metadata,omitempty"`
}

// ParseMetadata decodes the submission metadata echoed on the render.
func (r Render) ParseMetadata() (Metadata, error) {
	var m Metadata
	if r.Metadata == "" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(r.Metadata), &m); err != nil {
		return m, fmt.Errorf("decode render metadata: %w", err)
	}
	return m, nil
}

// Coordinator submits renders of a base video against every active hook clip.
type Coordinator struct {
	baseURL    string
	apiKey     string
	templateID string
	webhookURL string
	secret     []byte
	now        func() time.Time
	httpClient httpretry.HTTPDoer
	clips      ClipSource
	logger     *zap.Logger
}

// CoordinatorConfig holds the Creatomate settings.
type CoordinatorConfig struct {
	BaseURL    string
	APIKey     string
	TemplateID string
	WebhookURL string
	// SigningSecret adds a per-render sig parameter to the webhook URL.
	SigningSecret string
	Timeout       time.Duration
	MaxRetries int
}

// NewCoordinator creates a Creatomate render coordinator.
func NewCoordinator(cfg CoordinatorConfig, clips ClipSource, logger *zap.Logger) *Coordinator {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &Coordinator{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		templateID: cfg.TemplateID,
		webhookURL: cfg.WebhookURL,
		secret:     []byte(cfg.SigningSecret),
		now:        time.Now,
		httpClient: httpretry.NewRetryClient(httpClient, cfg.MaxRetries, httpretry.WithLogger(logger)),
		clips:      clips,
		logger:     logger,
	}
}

// SubmitAll starts one render per active hook clip and returns the submitted
// jobs in clip order. Any submission error aborts the remaining submissions.
func (c *Coordinator) SubmitAll(ctx context.Context, baseVideoURL, baseAdName, fbAdID string) ([]models.RenderJob, error) {
	clips, err := c.clips.ListHookClips(ctx)
	if err != nil {
		return nil, fmt.Errorf("list hook clips: %w", err)
	}
	jobs := make([]models.RenderJob, 0, len(clips))
	for _, clip := range clips {
		id, err := c.submit(ctx, baseVideoURL, clip, Metadata{BaseAdName: baseAdName, HookName: clip.Name, FBAdID: fbAdID})
		if err != nil {
			return jobs, fmt.Errorf("submit render for hook %s: %w", clip.Name, err)
		}
		c.logger.Info("render submitted",
			zap.String("render_id", id),
			zap.String("hook", clip.Name),
			zap.String("fb_ad_id", fbAdID))
		jobs = append(jobs, models.RenderJob{HookName: clip.Name, RenderID: id})
	}
	return jobs, nil
}

func (c *Coordinator) submit(ctx context.Context, baseVideoURL string, clip models.HookClip, meta Metadata) (string, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	webhookURL, err := c.callbackURL(meta)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(renderRequest{
		TemplateID: c.templateID,
		Modifications: map[string]string{
			BaseVideoElement: baseVideoURL,
			HookVideoElement: clip.URL,
		},
		WebhookURL: webhookURL,
		Metadata:   string(metaJSON),
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/renders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("creatomate returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var renders []Render
	if err := json.Unmarshal(data, &renders); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(renders) == 0 || renders[0].ID == "" {
		return "", fmt.Errorf("creatomate returned no render")
	}
	return renders[0].ID, nil
}

// callbackURL returns the webhook URL for one render, signed for its ad and
// hook clip when a signing secret is configured.
func (c *Coordinator) callbackURL(meta Metadata) (string, error) {
	if c.webhookURL == "" || len(c.secret) == 0 {
		return c.webhookURL, nil
	}
	sig, err := token.Generate(meta.FBAdID, meta.HookName, c.now(), c.secret)
	if err != nil {
		return "", fmt.Errorf("sign webhook: %w", err)
	}
	u, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", fmt.Errorf("parse webhook url: %w", err)
	}
	q := u.Query()
	q.Set(SignatureParam, sig)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
