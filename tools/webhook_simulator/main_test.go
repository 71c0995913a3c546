package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/render"
)

func TestWebhookURL(t *testing.T) {
	u, err := webhookURL("http://localhost:8787", "")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8787/webhooks/creatomate", u)

	u, err = webhookURL("http://localhost:8787/", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8787/webhooks/creatomate?token=s3cret", u)
}

func TestCallbackFor_RoundTripsThroughEvent(t *testing.T) {
	payload := models.RenderPayload{BaseAdName: "auto-001-hero", HookName: "shock", FBAdID: "77"}

	cb := callbackFor("r-1", payload, false)
	assert.Equal(t, render.StatusSucceeded, cb.Status)
	assert.Contains(t, cb.URL, "r-1.mp4")

	ev, ok := render.EventFromCallback(cb, models.Event{}.UpdatedAt)
	require.True(t, ok)
	assert.Equal(t, models.RenderEventKey("r-1"), ev.Key)
	assert.Equal(t, models.EventSuccess, ev.Status)
	assert.Equal(t, "shock", ev.Payload.HookName)
	assert.Equal(t, "77", ev.Payload.FBAdID)

	failed := callbackFor("r-2", payload, true)
	assert.Equal(t, render.StatusFailed, failed.Status)
	assert.Empty(t, failed.URL)
	body, err := json.Marshal(failed)
	require.NoError(t, err)
	assert.Contains(t, string(body), "simulated render failure")
}
