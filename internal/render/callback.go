package render

import (
	"time"

	"github.com/patrickwarner/creativeloop/internal/models"
)

// Creatomate render statuses that finish a render.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// EventFromCallback maps a webhook render payload to the event it completes.
// It returns false for statuses that do not finish the render.
func EventFromCallback(r Render, now time.Time) (models.Event, bool) {
	var status models.EventStatus
	switch r.Status {
	case StatusSucceeded:
		status = models.EventSuccess
	case StatusFailed:
		status = models.EventFailure
	default:
		return models.Event{}, false
	}
	// metadata is best effort; the render id alone keys the event
	meta, _ := r.ParseMetadata()
	return models.Event{
		Key:    models.RenderEventKey(r.ID),
		Status: status,
		Payload: models.RenderPayload{
			RenderID:   r.ID,
			URL:        r.URL,
			BaseAdName: meta.BaseAdName,
			HookName:   meta.HookName,
			FBAdID:     meta.FBAdID,
			Error:      r.ErrorMessage,
		},
		UpdatedAt: now,
	}, true
}
