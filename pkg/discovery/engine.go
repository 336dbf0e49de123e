package discovery

import (
	"context"
	"fmt"
	"math"
	"time"

	"assetgrab/pkg/behavior"
	"assetgrab/pkg/browser"
	"assetgrab/pkg/config"
	"assetgrab/pkg/logger"
	"assetgrab/pkg/ratelimit"
)

// stopReason records why the scroll loop terminated
type stopReason string

const (
	stopNoMoreContent    stopReason = "no_more_content"
	stopThresholdReached stopReason = "save_threshold_reached"
	stopMaxAttempts      stopReason = "max_attempts_reached"
	stopCancelled        stopReason = "cancelled"
)

// Engine drives one browser session through the load-more/scroll/extract
// cycle, feeding discovered links into a Store. A session runs exactly once:
// INIT, navigate, then the bounded scroll loop, then termination with an
// unconditional flush and browser release.
type Engine struct {
	session browser.Session
	limiter ratelimit.Limiter
	sim     *behavior.Simulator
	store   *Store
	cfg     *config.Config
	log     logger.Logger

	// actionCount tracks page-facing actions for progress logging
	actionCount int

	// backoffUnit scales step-retry backoff; tests shrink it
	backoffUnit time.Duration
}

// NewEngine creates a discovery engine. The session is owned by the engine
// from this point on and is closed when Run returns.
func NewEngine(
	session browser.Session,
	limiter ratelimit.Limiter,
	sim *behavior.Simulator,
	store *Store,
	cfg *config.Config,
	log logger.Logger,
) *Engine {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Engine{
		session:     session,
		limiter:     limiter,
		sim:         sim,
		store:       store,
		cfg:         cfg,
		log:         log,
		backoffUnit: time.Second,
	}
}

// Run executes the full discovery session. Navigation failure is fatal and
// returns an error; every other step failure is soft and the loop continues.
// Collected links are flushed and the session is released on every path out,
// including cancellation and fatal errors.
func (e *Engine) Run(ctx context.Context) error {
	defer func() {
		if err := e.store.Flush(e.cfg.Discovery.Keyword); err != nil {
			e.log.WithError(err).Error("final link flush failed")
		}
		if err := e.session.Close(); err != nil {
			e.log.WithError(err).Warn("browser session close failed")
		}
	}()

	if err := e.navigate(ctx); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	// The feed starts behind a single load-more control. A failed first
	// click is not fatal; scrolling may still load content.
	if !e.triggerLoadMore(ctx) {
		e.log.Warn("load-more control not activated, continuing with scroll")
	}

	if err := e.sim.Delay(ctx, e.cfg.Delays.SettleMin, e.cfg.Delays.SettleMax, false); err != nil {
		return err
	}

	reason := e.scrollLoop(ctx)
	e.log.InfoWithFields("discovery session finished", map[string]interface{}{
		"reason":      string(reason),
		"actions":     e.actionCount,
		"total_saved": e.store.TotalSaved(),
		"pending":     e.store.Len(),
	})

	if reason == stopCancelled {
		return ctx.Err()
	}
	return nil
}

// navigate performs the one-shot page load. Failure here aborts the session.
func (e *Engine) navigate(ctx context.Context) error {
	if err := e.limiter.Acquire(ctx); err != nil {
		return err
	}

	target := e.cfg.Discovery.TargetURL()
	e.log.WithField("url", target).Info("navigating to target")

	d := e.cfg.Delays
	if err := e.sim.Delay(ctx, d.NavigateMin, d.NavigateMax, false); err != nil {
		return err
	}

	if err := e.session.Navigate(ctx, target); err != nil {
		return err
	}
	e.actionCount++

	e.checkPageHealth(ctx)

	// Let dynamic content settle before interacting
	if err := e.sim.Delay(ctx, d.SettleMin, d.SettleMax, false); err != nil {
		return err
	}
	if err := e.sim.MaybePause(ctx); err != nil {
		return err
	}

	e.log.Info("page loaded")
	return nil
}

// checkPageHealth runs the advisory anti-bot heuristic and logs the verdict.
// A negative signal never aborts the session.
func (e *Engine) checkPageHealth(ctx context.Context) {
	title, err := e.session.Title(ctx)
	if err != nil {
		e.log.WithError(err).Warn("page health check could not read title")
		return
	}
	content, err := e.session.Content(ctx)
	if err != nil {
		e.log.WithError(err).Warn("page health check could not read content")
		return
	}
	if !e.sim.PageHealthy(title, content) {
		e.log.Warn("page looks unhealthy, possible bot detection; continuing anyway")
	}
}

// triggerLoadMore locates and clicks the advance-the-feed control. A missing
// control returns false without retrying: the feed has no more to advance.
// Internal failures retry with growing backoff and exhaust to a soft false.
func (e *Engine) triggerLoadMore(ctx context.Context) bool {
	d := e.cfg.Delays

	for attempt := 1; attempt <= e.cfg.Retry.MaxRetries; attempt++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			return false
		}

		if err := e.session.MoveMouse(ctx); err != nil {
			e.log.WithError(err).Debug("mouse gesture failed")
		}

		if err := e.sim.Delay(ctx, d.ClickMin, d.ClickMax, false); err != nil {
			return false
		}

		found, err := e.session.ClickFirst(ctx, e.cfg.Discovery.LoadMoreSelector)
		if err == nil {
			if !found {
				e.log.Info("load-more control absent, feed may be fully loaded")
				return false
			}
			e.actionCount++
			if err := e.sim.Delay(ctx, d.ScrollMin, d.ScrollMax, false); err != nil {
				return false
			}
			e.log.Info("load-more control clicked")
			return true
		}

		e.log.WithError(err).WarnWithFields("load-more click failed", map[string]interface{}{
			"attempt": attempt,
		})
		if attempt < e.cfg.Retry.MaxRetries {
			if e.stepBackoff(ctx, attempt) != nil {
				return false
			}
		}
	}

	e.log.Error("load-more click retries exhausted")
	return false
}

// scroll issues one scroll-to-bottom action and reports whether the page
// height grew. Same retry/backoff soft-failure policy as triggerLoadMore.
func (e *Engine) scroll(ctx context.Context) bool {
	d := e.cfg.Delays

	for attempt := 1; attempt <= e.cfg.Retry.MaxRetries; attempt++ {
		if err := e.limiter.Acquire(ctx); err != nil {
			return false
		}

		before, err := e.session.ContentHeight(ctx)
		if err == nil {
			if merr := e.session.MoveMouse(ctx); merr != nil {
				e.log.WithError(merr).Debug("mouse gesture failed")
			}
			if e.sim.MaybePause(ctx) != nil {
				return false
			}

			err = e.session.ScrollToBottom(ctx)
		}

		var after int64
		if err == nil {
			if e.sim.Delay(ctx, d.ScrollMin, d.ScrollMax, true) != nil {
				return false
			}
			after, err = e.session.ContentHeight(ctx)
		}

		if err == nil {
			e.actionCount++
			if after > before {
				e.log.DebugWithFields("new content loaded", map[string]interface{}{
					"growth_px": after - before,
				})
				return true
			}
			e.log.Debug("page height unchanged")
			return false
		}

		e.log.WithError(err).WarnWithFields("scroll failed", map[string]interface{}{
			"attempt": attempt,
		})
		if attempt < e.cfg.Retry.MaxRetries {
			if e.stepBackoff(ctx, attempt) != nil {
				return false
			}
		}
	}

	return false
}

// extract scans currently rendered download affordances and adds unseen URLs
// to the store. Failures count as "no new links this pass".
func (e *Engine) extract(ctx context.Context) int {
	attrs, err := e.session.ExtractAttrs(ctx, e.cfg.Discovery.DownloadLinkSelector, "href")
	if err != nil {
		e.log.WithError(err).Error("link extraction failed")
		return e.store.Len()
	}

	added := 0
	for _, href := range attrs {
		if e.store.Add(href) {
			added++
		}
	}
	if added > 0 {
		e.log.InfoWithFields("extracted new links", map[string]interface{}{
			"new":   added,
			"total": e.store.Len(),
		})
	}
	return e.store.Len()
}

// scrollLoop runs scroll/extract cycles until one of the termination
// conditions fires. The no-growth counter resets on any height growth and the
// save-threshold check runs after the growth result has been credited, so a
// growing scroll that crosses the threshold still counts as growth first.
func (e *Engine) scrollLoop(ctx context.Context) stopReason {
	dcfg := e.cfg.Discovery
	noGrowth := 0

	for attempt := 1; attempt <= dcfg.MaxScrollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return stopCancelled
		default:
		}

		if e.scroll(ctx) {
			noGrowth = 0
		} else {
			noGrowth++
		}

		if noGrowth >= dcfg.NoGrowthLimit {
			e.log.Info("no new content after consecutive scrolls, reached feed bottom")
			return stopNoMoreContent
		}

		if e.sim.Delay(ctx, e.cfg.Delays.IterMin, e.cfg.Delays.IterMax, false) != nil {
			return stopCancelled
		}

		count := e.extract(ctx)

		e.housekeep(ctx)

		if count >= dcfg.SaveThreshold {
			if err := e.store.Flush(dcfg.Keyword); err != nil {
				e.log.WithError(err).Error("threshold flush failed")
			}
			return stopThresholdReached
		}
	}

	return stopMaxAttempts
}

// housekeep prunes stale rendered nodes so a long session does not grow the
// DOM without bound. Only a memory/CPU bound; extraction correctness does not
// depend on it.
func (e *Engine) housekeep(ctx context.Context) {
	selectors := []string{"img", e.cfg.Discovery.DownloadLinkSelector}
	if err := e.session.Prune(ctx, selectors, e.cfg.Discovery.DOMKeepCount); err != nil {
		e.log.WithError(err).Warn("DOM pruning failed")
	}
}

// stepBackoff sleeps factor^attempt units before the next step retry
func (e *Engine) stepBackoff(ctx context.Context, attempt int) error {
	wait := time.Duration(math.Pow(e.cfg.Retry.BackoffFactor, float64(attempt)) * float64(e.backoffUnit))
	e.log.InfoWithFields("backing off before retry", map[string]interface{}{
		"wait": wait.String(),
	})
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
