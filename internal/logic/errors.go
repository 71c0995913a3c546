package logic

import "errors"

var (
	// ErrNoScalingCampaign is returned when neither the record nor the
	// configuration names a scaling campaign.
	ErrNoScalingCampaign = errors.New("no scaling campaign configured")
	// ErrNoGateway is returned when no platform gateway can be resolved for an
	// ad account.
	ErrNoGateway = errors.New("no platform gateway for account")
)
