// Package logic contains the ad lifecycle decision engine.
//
// Each run refreshes every active ad's performance metrics from the warehouse
// and evaluates a fixed rule ladder against them:
//   - Pause: lifetime or trailing three-day ROI below break-even pauses the ad set.
//   - Hold: positive but unproven ROI is left alone.
//   - Grow: proven winners get hook variants rendered and launched, and the
//     strongest are duplicated into a scaling campaign.
//
// Each growth action is guarded by its own lifecycle axis so repeated runs
// never repeat an action.
package logic

import (
	"fmt"

	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/models"
)

// Decision is the outcome of evaluating one ad.
type Decision string

const (
	DecisionSkipInactive Decision = "skip_inactive"
	DecisionSkipLowSpend Decision = "skip_low_spend"
	DecisionSkipScaled   Decision = "skip_scaled"
	DecisionPause        Decision = "pause"
	DecisionHold         Decision = "hold"
	DecisionGrow         Decision = "grow"
)

// Skipped reports whether d is one of the precondition skips.
func (d Decision) Skipped() bool {
	switch d {
	case DecisionSkipInactive, DecisionSkipLowSpend, DecisionSkipScaled:
		return true
	}
	return false
}

// Thresholds are the spend and ROI cut-offs of the rule ladder.
type Thresholds struct {
	Spend      float64 `json:"spend"`
	PauseROI   float64 `json:"pauseRoi"`
	HookROI    float64 `json:"hookRoi"`
	ScalingROI float64 `json:"scalingRoi"`
}

// DefaultThresholds returns the standard rule ladder.
func DefaultThresholds() Thresholds {
	return Thresholds{Spend: 40, PauseROI: 1.0, HookROI: 1.3, ScalingROI: 1.5}
}

// ThresholdsFromConfig reads the rule ladder from cfg.
func ThresholdsFromConfig(cfg config.Config) Thresholds {
	return Thresholds{
		Spend:      cfg.SpendThreshold,
		PauseROI:   cfg.PauseROIThreshold,
		HookROI:    cfg.HookROIThreshold,
		ScalingROI: cfg.ScalingROIThreshold,
	}
}

// Plan is the set of actions the engine will take for an ad.
type Plan struct {
	Decision    Decision `json:"decision"`
	Reason      string   `json:"reason"`
	CreateCard  bool     `json:"createCard"`
	CreateHooks bool     `json:"createHooks"`
	Scale       bool     `json:"scale"`
}

// Classify evaluates ad against t without side effects. Preconditions are
// checked first, then the rules in priority order so a losing ad is always
// paused regardless of its other state.
func Classify(ad *models.AdPerformance, t Thresholds) Plan {
	lc := ad.Lifecycle
	spend := ad.LifetimeSpend()
	lifetimeROI := ad.LifetimeROI()
	recentROI := ad.Last3DaysROI()

	switch {
	case !lc.Active():
		return Plan{Decision: DecisionSkipInactive, Reason: "ad is not active"}
	case spend < t.Spend:
		return Plan{Decision: DecisionSkipLowSpend, Reason: fmt.Sprintf("lifetime spend %.2f below %.2f", spend, t.Spend)}
	case lc.Scale == models.ScaleDone:
		return Plan{Decision: DecisionSkipScaled, Reason: "ad already scaled"}
	}

	if lifetimeROI < t.PauseROI || recentROI < t.PauseROI {
		return Plan{
			Decision: DecisionPause,
			Reason:   fmt.Sprintf("lifetime ROI %.2f, last 3 days ROI %.2f, below %.2f", lifetimeROI, recentROI, t.PauseROI),
		}
	}
	if lifetimeROI < t.HookROI {
		return Plan{Decision: DecisionHold, Reason: fmt.Sprintf("lifetime ROI %.2f below %.2f", lifetimeROI, t.HookROI)}
	}

	hooks := lc.HookEligible()
	return Plan{
		Decision:    DecisionGrow,
		Reason:      fmt.Sprintf("lifetime ROI %.2f at or above %.2f", lifetimeROI, t.HookROI),
		CreateCard:  hooks,
		CreateHooks: hooks,
		Scale:       lifetimeROI >= t.ScalingROI && lc.ScaleEligible(),
	}
}
