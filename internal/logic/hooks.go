package logic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/patrickwarner/creativeloop/internal/config"
	"github.com/patrickwarner/creativeloop/internal/macros"
	"github.com/patrickwarner/creativeloop/internal/middleware"
	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/platform"
)

// CreateHooks renders parent's base video against every active hook clip and
// launches one hook ad per completed render. Every hook record is persisted
// before CreateHooks returns.
//
// Under the abort policy the first failure cancels the remaining hooks and
// parent stays unmarked. Under the isolate policy each hook fails on its own,
// parent is marked when at least one hook succeeded and the failures are
// returned joined.
func (e *Engine) CreateHooks(ctx context.Context, gw platform.Gateway, parent *models.AdPerformance) ([]*models.AdPerformance, error) {
	ctx, span := e.tracer.Start(ctx, "engine.CreateHooks")
	defer span.End()
	logger := middleware.LoggerFromContext(ctx, e.logger.With(zap.String("ad_id", parent.FBAdID)))

	jobs, err := e.deps.Renders.SubmitAll(ctx, parent.GDriveDownloadURL, parent.AdName, parent.FBAdID)
	if err != nil {
		return nil, fmt.Errorf("submit renders: %w", err)
	}
	if len(jobs) == 0 {
		logger.Warn("no hook clips available, marking hooks created")
		return nil, e.markHooksCreated(ctx, parent)
	}

	now := e.clock.Now()
	for _, job := range jobs {
		ev := models.Event{
			Key:    models.RenderEventKey(job.RenderID),
			Status: models.EventPending,
			Payload: models.RenderPayload{
				RenderID:   job.RenderID,
				BaseAdName: parent.AdName,
				HookName:   job.HookName,
				FBAdID:     parent.FBAdID,
			},
			UpdatedAt: now,
		}
		created, err := e.deps.Events.CreateEvent(ctx, ev)
		if err != nil {
			return nil, fmt.Errorf("create render event %s: %w", ev.Key, err)
		}
		if !created {
			logger.Debug("render event already present", zap.String("key", ev.Key))
		}
	}

	var (
		mu    sync.Mutex
		hooks []*models.AdPerformance
		errs  []error
	)
	collect := func(h *models.AdPerformance) {
		mu.Lock()
		hooks = append(hooks, h)
		mu.Unlock()
	}

	if e.settings.HookFailurePolicy == config.HookPolicyIsolate {
		var wg sync.WaitGroup
		for _, job := range jobs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				h, err := e.launchHook(ctx, gw, parent, job)
				if err != nil {
					logger.Warn("hook failed", zap.String("hook", job.HookName), zap.Error(err))
					mu.Lock()
					errs = append(errs, fmt.Errorf("hook %s: %w", job.HookName, err))
					mu.Unlock()
					return
				}
				collect(h)
			}()
		}
		wg.Wait()
		joined := errors.Join(errs...)
		if len(hooks) == 0 {
			return nil, joined
		}
		if err := e.markHooksCreated(ctx, parent); err != nil {
			return hooks, errors.Join(joined, err)
		}
		return hooks, joined
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		g.Go(func() error {
			h, err := e.launchHook(gctx, gw, parent, job)
			if err != nil {
				return fmt.Errorf("hook %s: %w", job.HookName, err)
			}
			collect(h)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if len(hooks) > 0 {
			logger.Error("hook batch aborted with hook ads already launched",
				zap.Int("launched", len(hooks)), zap.Error(err))
		}
		return hooks, err
	}
	return hooks, e.markHooksCreated(ctx, parent)
}

func (e *Engine) markHooksCreated(ctx context.Context, parent *models.AdPerformance) error {
	parent.Lifecycle.Hooks = models.HookDone
	parent.UpdatedAt = e.clock.Now()
	if err := e.deps.Store.Save(ctx, parent); err != nil {
		return fmt.Errorf("mark hooks created: %w", err)
	}
	return nil
}

// launchHook waits for one render and turns its video into a live hook ad.
func (e *Engine) launchHook(ctx context.Context, gw platform.Gateway, parent *models.AdPerformance, job models.RenderJob) (*models.AdPerformance, error) {
	pending, err := e.deps.Watcher.Watch(ctx, models.RenderEventKey(job.RenderID))
	if err != nil {
		return nil, err
	}
	ev, err := pending.Wait()
	if err != nil {
		return nil, err
	}
	videoURL := ev.Payload.URL

	n, err := e.deps.Store.NextCounter(ctx, HookCounter)
	if err != nil {
		return nil, fmt.Errorf("next hook counter: %w", err)
	}
	name := fmt.Sprintf("%s-H%d-%s", parent.AdName, n, job.HookName)

	adSetID, err := gw.CreateAdSet(ctx, platform.AdSetSpec{
		Name:        name,
		CampaignID:  parent.FBCampaignID,
		DailyBudget: e.settings.HookDailyBudget,
		Status:      platform.StatusActive,
	})
	if err != nil {
		return nil, err
	}
	linkURL, err := e.deps.Links.ExpandURL(e.settings.LinkURL, &macros.Context{
		AdName:       name,
		ParentAdID:   parent.FBAdID,
		ParentAdName: parent.AdName,
		HookName:     job.HookName,
		Vertical:     parent.Vertical,
		CampaignID:   parent.FBCampaignID,
		AccountID:    parent.FBAccountID,
		Counter:      n,
		Timestamp:    e.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("expand link url: %w", err)
	}

	videoID, err := gw.UploadAdVideo(ctx, videoURL, name)
	if err != nil {
		return nil, err
	}
	creativeID, err := gw.CreateAdCreative(ctx, platform.CreativeSpec{
		Name:    name,
		VideoID: videoID,
		PageID:  e.settings.PageID,
		LinkURL: linkURL,
		Title:   parent.AdName,
	})
	if err != nil {
		return nil, err
	}
	adID, err := gw.CreateAd(ctx, platform.AdSpec{
		Name:       name,
		AdSetID:    adSetID,
		CreativeID: creativeID,
		Status:     platform.StatusActive,
	})
	if err != nil {
		return nil, err
	}

	rec := models.NewHookRecord(parent, adID, adSetID, name, videoURL, n, e.clock.Now())
	if err := e.deps.Store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("save hook record %s: %w", adID, err)
	}
	e.metrics.IncrementHooksCreated()
	middleware.LoggerFromContext(ctx, e.logger).Info("hook ad launched",
		zap.String("parent_ad_id", parent.FBAdID),
		zap.String("hook_ad_id", adID),
		zap.String("hook", job.HookName))
	return rec, nil
}
