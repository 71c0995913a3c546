package logic

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/patrickwarner/creativeloop/internal/middleware"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/platform"
)

// Scale duplicates source's ad set into the scaling campaign with the scaling
// budget and records the duplicate's ad. source is claimed as scaled before
// anything is duplicated, so a failure part way through never leads to a
// second duplicate on a later run.
func (e *Engine) Scale(ctx context.Context, gw platform.Gateway, source *models.AdPerformance) (*models.AdPerformance, error) {
	ctx, span := e.tracer.Start(ctx, "engine.Scale")
	defer span.End()
	logger := middleware.LoggerFromContext(ctx, e.logger.With(zap.String("ad_id", source.FBAdID)))

	campaignID := source.FBScalingCampaignID
	if campaignID == "" {
		campaignID = e.settings.ScalingCampaignID
	}
	if campaignID == "" {
		return nil, ErrNoScalingCampaign
	}

	source.Lifecycle.Scale = models.ScaleDone
	source.UpdatedAt = e.clock.Now()
	if err := e.deps.Store.Save(ctx, source); err != nil {
		return nil, fmt.Errorf("claim scaling: %w", err)
	}

	adSetID, err := gw.GetAdSetIDFromAdID(ctx, source.FBAdID)
	if err != nil {
		return nil, err
	}
	start := NextWeekday(e.clock.Now(), e.settings.Location)
	newAdSetID, err := gw.DuplicateAdSet(ctx, adSetID, campaignID, start)
	if err != nil {
		return nil, err
	}
	if err := gw.UpdateAdSetBudget(ctx, newAdSetID, e.settings.ScalingDailyBudget); err != nil {
		return nil, err
	}
	ads, err := gw.GetAdsInAdSet(ctx, newAdSetID)
	if err != nil {
		return nil, err
	}
	if len(ads) == 0 {
		return nil, fmt.Errorf("ad set %s: %w", newAdSetID, platform.ErrNoAds)
	}
	if len(ads) > 1 {
		logger.Warn("duplicated ad set holds more than one ad, recording the first",
			zap.String("adset_id", newAdSetID), zap.Int("ads", len(ads)))
	}

	rec := models.NewScaledRecord(source, ads[0].ID, newAdSetID, campaignID, e.clock.Now())
	if err := e.deps.Store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save scaled record %s: %w", rec.FBAdID, err)
	}
	e.metrics.IncrementAdsScaled()
	logger.Info("ad scaled",
		zap.String("scaled_ad_id", rec.FBAdID),
		zap.String("adset_id", newAdSetID),
		zap.Time("start", start))
	return rec, nil
}
