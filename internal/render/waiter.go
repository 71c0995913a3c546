package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/facebookgo/clock"

	"github.com/patrickwarner/creativeloop/internal/models"
	"github.com/patrickwarner/creativeloop/internal/observability"
)

var (
	// ErrRenderTimeout is returned when a render event does not complete in time.
	ErrRenderTimeout = errors.New("render timed out")
	// ErrRenderFailed is returned when the render service reports a failure.
	ErrRenderFailed = errors.New("render failed")
)

// EventSource reads and follows render events.
type EventSource interface {
	GetEvent(ctx context.Context, key string) (*models.Event, error)
	SubscribeEvent(ctx context.Context, key string) (<-chan models.Event, func(), error)
}

// Waiter turns render events into futures bounded by a timeout on an
// injected clock.
type Waiter struct {
	Events  EventSource
	Clock   clock.Clock
	Timeout time.Duration
	Metrics observability.MetricsRegistry
}

// NewWaiter creates a Waiter using the wall clock.
func NewWaiter(events EventSource, timeout time.Duration, metrics observability.MetricsRegistry) *Waiter {
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Waiter{Events: events, Clock: clock.New(), Timeout: timeout, Metrics: metrics}
}

// Pending is the future result of a render event.
type Pending struct {
	key  string
	done chan struct{}
	ev   *models.Event
	err  error
}

// Key returns the event key being awaited.
func (p *Pending) Key() string { return p.key }

// Done is closed once the result is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the event resolves. It returns the completed event on
// SUCCESS, ErrRenderFailed on FAILURE, ErrRenderTimeout when the timeout
// elapses first, or the context error when ctx is canceled.
func (p *Pending) Wait() (*models.Event, error) {
	<-p.done
	return p.ev, p.err
}

// Watch starts awaiting the event at key. The subscription and the timeout are
// both armed before Watch returns, and the current value is read after
// subscribing, so a completion written at any point is observed.
func (w *Waiter) Watch(ctx context.Context, key string) (*Pending, error) {
	events, unsubscribe, err := w.Events.SubscribeEvent(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}
	timer := w.Clock.Timer(w.Timeout)

	current, err := w.Events.GetEvent(ctx, key)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		timer.Stop()
		unsubscribe()
		return nil, fmt.Errorf("watch %s: %w", key, err)
	}

	p := &Pending{key: key, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		defer unsubscribe()
		defer timer.Stop()

		if current != nil && current.Status.Done() {
			w.resolve(p, *current)
			return
		}
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					p.err = fmt.Errorf("event subscription for %s closed", key)
					w.Metrics.IncrementRenderOutcome("error")
					return
				}
				if ev.Status.Done() {
					w.resolve(p, ev)
					return
				}
			case <-timer.C:
				p.err = fmt.Errorf("%w: %s after %s", ErrRenderTimeout, key, w.Timeout)
				w.Metrics.IncrementRenderOutcome("timeout")
				return
			case <-ctx.Done():
				p.err = ctx.Err()
				w.Metrics.IncrementRenderOutcome("canceled")
				return
			}
		}
	}()
	return p, nil
}

func (w *Waiter) resolve(p *Pending, ev models.Event) {
	if ev.Status == models.EventFailure {
		msg := ev.Payload.Error
		if msg == "" {
			msg = "no reason given"
		}
		p.err = fmt.Errorf("%w: %s: %s", ErrRenderFailed, p.key, msg)
		w.Metrics.IncrementRenderOutcome("failure")
		return
	}
	p.ev = &ev
	w.Metrics.IncrementRenderOutcome("success")
}
