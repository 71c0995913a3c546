package models

import "encoding/json"

// Activity tracks whether the ad is still delivering.
type Activity int

const (
	ActivityActive Activity = iota
	ActivityPaused
)

func (a Activity) String() string {
	if a == ActivityPaused {
		return "paused"
	}
	return "active"
}

// HookState tracks the hook-variant axis of an ad.
type HookState int

const (
	// HookPending means the ad may still spawn hook variants.
	HookPending HookState = iota
	// HookDone means hook variants have been created for the ad.
	HookDone
	// HookNotApplicable marks an ad that is itself a hook variant.
	HookNotApplicable
)

func (h HookState) String() string {
	switch h {
	case HookDone:
		return "hooks_created"
	case HookNotApplicable:
		return "is_hook"
	default:
		return "hook_pending"
	}
}

// ScaleState tracks the scaling axis of an ad.
type ScaleState int

const (
	// ScalePending means the ad may still be duplicated into a scaling campaign.
	ScalePending ScaleState = iota
	// ScaleDone means the ad has been claimed for (or completed) scaling.
	ScaleDone
	// ScaleNotApplicable marks an ad that is itself a scaled duplicate.
	ScaleNotApplicable
)

func (s ScaleState) String() string {
	switch s {
	case ScaleDone:
		return "scaled"
	case ScaleNotApplicable:
		return "is_scaled"
	default:
		return "scale_pending"
	}
}

// Phase is the derived summary state of a record, used for reporting.
type Phase string

const (
	PhaseActiveUnevaluated Phase = "ACTIVE_UNEVALUATED"
	PhasePaused            Phase = "PAUSED"
	PhaseHooksCreated      Phase = "HOOKS_CREATED"
	PhaseScaled            Phase = "SCALED"
	PhaseFullyProcessed    Phase = "FULLY_PROCESSED"
)

// Lifecycle composes the three independent axes of an ad's lifecycle.
// The zero value is an active, unprocessed original ad.
type Lifecycle struct {
	Activity Activity
	Hooks    HookState
	Scale    ScaleState
}

// Flags are the persisted boolean form of a Lifecycle.
type Flags struct {
	FBIsActive      bool `json:"fbIsActive"`
	IsHook          bool `json:"isHook"`
	HasHooksCreated bool `json:"hasHooksCreated"`
	IsScaled        bool `json:"isScaled"`
	HasScaled       bool `json:"hasScaled"`
}

// LifecycleFromFlags converts persisted flags into a Lifecycle. Contradictory
// combinations are normalized: isHook wins over hasHooksCreated and hasScaled
// wins over isScaled.
func LifecycleFromFlags(f Flags) Lifecycle {
	l := Lifecycle{Activity: ActivityPaused}
	if f.FBIsActive {
		l.Activity = ActivityActive
	}
	switch {
	case f.IsHook:
		l.Hooks = HookNotApplicable
	case f.HasHooksCreated:
		l.Hooks = HookDone
	}
	switch {
	case f.HasScaled:
		l.Scale = ScaleDone
	case f.IsScaled:
		l.Scale = ScaleNotApplicable
	}
	return l
}

// Flags returns the persisted boolean form of l.
func (l Lifecycle) Flags() Flags {
	return Flags{
		FBIsActive:      l.Activity == ActivityActive,
		IsHook:          l.Hooks == HookNotApplicable,
		HasHooksCreated: l.Hooks == HookDone,
		IsScaled:        l.Scale == ScaleNotApplicable,
		HasScaled:       l.Scale == ScaleDone,
	}
}

// Active reports whether the ad is still subject to rule evaluation.
func (l Lifecycle) Active() bool { return l.Activity == ActivityActive }

// HookEligible reports whether the ad may spawn hook variants. Scaled
// sources are excluded along with hooks and ads that already have hooks.
func (l Lifecycle) HookEligible() bool {
	return l.Hooks == HookPending && l.Scale != ScaleDone
}

// ScaleEligible reports whether the ad may be duplicated into a scaling campaign.
func (l Lifecycle) ScaleEligible() bool { return l.Scale == ScalePending }

// Phase derives the summary state of the record.
func (l Lifecycle) Phase() Phase {
	switch {
	case l.Activity == ActivityPaused:
		return PhasePaused
	case l.Scale == ScaleDone && l.Hooks == HookDone:
		return PhaseFullyProcessed
	case l.Scale == ScaleDone:
		return PhaseScaled
	case l.Hooks == HookDone:
		return PhaseHooksCreated
	default:
		return PhaseActiveUnevaluated
	}
}

type adPerformanceJSON struct {
	adPerformanceAlias
	Flags
}

type adPerformanceAlias AdPerformance

// MarshalJSON writes the record with its lifecycle flattened into the five
// document flags.
func (a AdPerformance) MarshalJSON() ([]byte, error) {
	return json.Marshal(adPerformanceJSON{
		adPerformanceAlias: adPerformanceAlias(a),
		Flags:              a.Lifecycle.Flags(),
	})
}

// UnmarshalJSON reads a record and rebuilds its lifecycle from the flags.
func (a *AdPerformance) UnmarshalJSON(data []byte) error {
	var v adPerformanceJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*a = AdPerformance(v.adPerformanceAlias)
	a.Lifecycle = LifecycleFromFlags(v.Flags)
	return nil
}
