package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/patrickwarner/creativeloop/internal/observability"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *observability.MockMetricsRegistry) {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	metrics := &observability.MockMetricsRegistry{}
	c := NewClient(ClientConfig{BaseURL: srv.URL, APIVersion: "v19.0", Timeout: 2 * time.Second, MaxRetries: 1},
		"act_42", "secret", nil, zaptest.NewLogger(t), metrics)
	return c, metrics
}

func TestClient_CreateAdSet(t *testing.T) {
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v19.0/act_42/adsets", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "Ad-H1-Question", r.PostForm.Get("name"))
		assert.Equal(t, "c1", r.PostForm.Get("campaign_id"))
		assert.Equal(t, "2000", r.PostForm.Get("daily_budget"))
		assert.Equal(t, "ACTIVE", r.PostForm.Get("status"))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "as-new"})
	})

	id, err := c.CreateAdSet(context.Background(), AdSetSpec{Name: "Ad-H1-Question", CampaignID: "c1", DailyBudget: 2000})
	require.NoError(t, err)
	assert.Equal(t, "as-new", id)
	assert.Equal(t, "42", c.AccountID())
	assert.Equal(t, 1, metrics.Count("gateway", "create_adset", "success"))
}

func TestClient_DuplicateAdSet(t *testing.T) {
	start := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/as1/copies", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "scale-camp", r.PostForm.Get("campaign_id"))
		assert.Equal(t, "true", r.PostForm.Get("deep_copy"))
		assert.Equal(t, "ACTIVE", r.PostForm.Get("status_option"))
		assert.Equal(t, "2024-03-04T00:00:00Z", r.PostForm.Get("start_time"))
		assert.Empty(t, r.PostForm.Get("rename_options"))
		_, _ = w.Write([]byte(`{"copied_adset_id":"as-copy"}`))
	})

	id, err := c.DuplicateAdSet(context.Background(), "as1", "scale-camp", start)
	require.NoError(t, err)
	assert.Equal(t, "as-copy", id)
}

func TestClient_GetAdSetIDAndAds(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v19.0/ad1":
			assert.Equal(t, "adset_id", r.URL.Query().Get("fields"))
			_, _ = w.Write([]byte(`{"id":"ad1","adset_id":"as1"}`))
		case "/v19.0/as-copy/ads":
			_, _ = w.Write([]byte(`{"data":[{"id":"ad-copy","name":"Ad","adset_id":"as-copy","status":"ACTIVE"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	adSetID, err := c.GetAdSetIDFromAdID(context.Background(), "ad1")
	require.NoError(t, err)
	assert.Equal(t, "as1", adSetID)

	ads, err := c.GetAdsInAdSet(context.Background(), "as-copy")
	require.NoError(t, err)
	require.Len(t, ads, 1)
	assert.Equal(t, "ad-copy", ads[0].ID)
}

func TestClient_APIError(t *testing.T) {
	c, metrics := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","type":"OAuthException","code":100,"error_subcode":1487,"fbtrace_id":"abc"}}`))
	})

	err := c.UpdateAdSetStatus(context.Background(), "as1", StatusPaused)
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, 100, apiErr.Code)
	assert.Equal(t, 1487, apiErr.Subcode)
	assert.False(t, apiErr.IsRateLimited())
	assert.Equal(t, 1, metrics.Count("gateway", "update_adset_status", "failure"))
}

func TestClient_CreateCreativeAndAd(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseForm())
		switch r.URL.Path {
		case "/v19.0/act_42/adcreatives":
			var story map[string]any
			assert.NoError(t, json.Unmarshal([]byte(r.PostForm.Get("object_story_spec")), &story))
			assert.Equal(t, "page1", story["page_id"])
			_, _ = w.Write([]byte(`{"id":"cr1"}`))
		case "/v19.0/act_42/ads":
			assert.Equal(t, `{"creative_id":"cr1"}`, r.PostForm.Get("creative"))
			assert.Equal(t, "as1", r.PostForm.Get("adset_id"))
			_, _ = w.Write([]byte(`{"id":"ad9"}`))
		case "/v19.0/act_42/advideos":
			assert.Equal(t, "https://cdn/render.mp4", r.PostForm.Get("file_url"))
			_, _ = w.Write([]byte(`{"id":"vid1"}`))
		}
	})
	ctx := context.Background()

	vid, err := c.UploadAdVideo(ctx, "https://cdn/render.mp4", "hook")
	require.NoError(t, err)
	assert.Equal(t, "vid1", vid)

	cr, err := c.CreateAdCreative(ctx, CreativeSpec{Name: "hook", VideoID: vid, PageID: "page1", LinkURL: "https://lp"})
	require.NoError(t, err)
	assert.Equal(t, "cr1", cr)

	ad, err := c.CreateAd(ctx, AdSpec{Name: "hook", AdSetID: "as1", CreativeID: cr})
	require.NoError(t, err)
	assert.Equal(t, "ad9", ad)
}
