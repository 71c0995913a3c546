package models

import (
	"strings"
	"time"
)

// EventStatus is the state of an externally completed job.
type EventStatus string

const (
	EventPending EventStatus = "PENDING"
	EventSuccess EventStatus = "SUCCESS"
	EventFailure EventStatus = "FAILURE"
)

// Done reports whether the status is final.
func (s EventStatus) Done() bool {
	return s == EventSuccess || s == EventFailure
}

// RenderEventPrefix namespaces render events in the event store.
const RenderEventPrefix = "creatomate_render:"

// RenderEventKey returns the event key for a render job.
func RenderEventKey(renderID string) string {
	return RenderEventPrefix + renderID
}

// RenderIDFromKey extracts the render id from an event key.
func RenderIDFromKey(key string) (string, bool) {
	if !strings.HasPrefix(key, RenderEventPrefix) {
		return "", false
	}
	return strings.TrimPrefix(key, RenderEventPrefix), true
}

// RenderPayload is the data carried by a render event. The metadata fields echo
// what was attached when the render was submitted.
type RenderPayload struct {
	RenderID   string `json:"renderId"`
	URL        string `json:"url,omitempty"`
	BaseAdName string `json:"baseAdName"`
	HookName   string `json:"hookName"`
	FBAdID     string `json:"fbAdId"`
	Error      string `json:"error,omitempty"`
}

// Event is a transient handoff record between the engine and a webhook writer.
type Event struct {
	Key       string        `json:"key"`
	Status    EventStatus   `json:"status"`
	Payload   RenderPayload `json:"payload"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// HookClip is an alternate opening clip that can be spliced onto a base video.
type HookClip struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// RenderJob identifies a submitted render for one hook clip.
type RenderJob struct {
	HookName string `json:"hookName"`
	RenderID string `json:"renderId"`
}
