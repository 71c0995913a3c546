package platform

import (
	"errors"
	"fmt"
)

// ErrNoAds is returned when an ad set unexpectedly contains no ads.
var ErrNoAds = errors.New("ad set has no ads")

// APIError is an error payload returned by the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error (http %d, code %d/%d): %s", e.StatusCode, e.Code, e.Subcode, e.Message)
}

// IsRateLimited reports whether the error is one of the Graph API throttling codes.
func (e *APIError) IsRateLimited() bool {
	switch e.Code {
	case 4, 17, 32, 613, 80004:
		return true
	}
	return false
}
