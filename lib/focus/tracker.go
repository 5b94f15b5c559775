package focus

import (
	"context"

	"github.com/focusfinder/server/lib/webdomain"
)

// WindowFocusChanged reacts to the browser window gaining or losing focus.
// Rapid flicker (alt-tab overshoot, dialog focus bounce) is debounced; only
// the last value within the debounce window is applied.
func (e *Engine) WindowFocusChanged(focused bool) {
	e.mu.Lock()
	if e.focusTimer != nil {
		e.focusTimer.Stop()
	}
	e.focusTimer = e.clock.AfterFunc(focusDebounce, func() { e.applyWindowFocus(focused) })
	e.mu.Unlock()
}

func (e *Engine) applyWindowFocus(focused bool) {
	fx := newEffects()
	e.mu.Lock()
	if e.windowFocused != focused {
		e.windowFocused = focused
		if focused {
			e.reevaluateAllLocked(fx)
		} else {
			e.registry.ForEach(func(domain string, rec *DomainRecord) {
				if e.applyPauseStateLocked(domain, overrideReason(ReasonWindowBlurred), fx) {
					fx.stageSave(domain, rec, e.clock.Now())
				}
			})
		}
	}
	e.mu.Unlock()
	e.applyEffects(context.Background(), fx)
}

// TabUpdated handles a tab finishing navigation. Membership moves to the new
// domain, the previously active domain pauses when this tab is active, and
// the new domain goes through the watchlist check.
func (e *Engine) TabUpdated(ctx context.Context, tabID int, url string, active bool) {
	if tabID <= 0 {
		e.log.Warn("ignoring tab update with invalid tab id", "tab_id", tabID)
		return
	}
	domain := webdomain.Extract(url)

	fx := newEffects()
	e.mu.Lock()
	if domain != "" {
		if rec := e.registry.Get(domain); rec != nil {
			e.registry.AddTab(domain, tabID)
			fx.stageSave(domain, rec, e.clock.Now())
		}

		if active {
			if e.activeDomain != domain {
				e.pausePreviousActiveLocked(fx)
				e.activeDomain = domain
			}
			e.activeTabID = tabID
			if rec := e.registry.Get(domain); rec != nil {
				e.applyPauseStateLocked(domain, noOverride(), fx)
				fx.stageSave(domain, rec, e.clock.Now())
			}
		}

		e.checkDomainStatusLocked(tabID, domain, fx)
	} else if active {
		// Navigated to an untracked URL.
		e.pausePreviousActiveLocked(fx)
		e.activeDomain = ""
		e.activeTabID = tabID
	}

	// The tab navigated here from somewhere; drop its membership in every
	// other domain, including when the new page is untracked.
	changed := false
	e.registry.ForEach(func(d string, rec *DomainRecord) {
		if d != domain && rec.HasTab(tabID) {
			if e.registry.RemoveTab(d, tabID) {
				e.log.Info("no tabs left for domain after navigation, deleting state", "domain", d)
			}
			changed = true
		}
	})
	if changed {
		fx.stageSaveAll(e.registry, e.clock.Now())
	}
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}

// TabActivated handles the active tab changing. The tab is resolved against
// the live browser before any state moves.
func (e *Engine) TabActivated(ctx context.Context, tabID int) {
	if tabID <= 0 {
		e.log.Warn("ignoring tab activation with invalid tab id", "tab_id", tabID)
		return
	}

	tab, err := e.browser.GetTab(ctx, tabID)
	if err != nil || tab.URL == "" {
		if err != nil {
			e.log.Warn("failed to resolve activated tab", "err", err, "tab_id", tabID)
		}
		fx := newEffects()
		e.mu.Lock()
		e.pausePreviousActiveLocked(fx)
		e.activeDomain = ""
		e.activeTabID = tabID
		e.mu.Unlock()
		e.applyEffects(ctx, fx)
		return
	}

	domain := webdomain.Extract(tab.URL)

	fx := newEffects()
	e.mu.Lock()
	if e.activeDomain != "" && e.activeDomain != domain {
		e.pausePreviousActiveLocked(fx)
	}
	e.activeTabID = tabID
	e.activeDomain = domain
	if domain != "" {
		e.checkDomainStatusLocked(tabID, domain, fx)
		if rec := e.registry.Get(domain); rec != nil {
			e.applyPauseStateLocked(domain, noOverride(), fx)
			fx.stageSave(domain, rec, e.clock.Now())
		}
	}
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}

// pausePreviousActiveLocked pauses the currently active domain because
// another tab is taking over.
func (e *Engine) pausePreviousActiveLocked(fx *effects) {
	prev := e.activeDomain
	if prev == "" {
		return
	}
	rec := e.registry.Get(prev)
	if rec == nil {
		return
	}
	e.applyPauseStateLocked(prev, overrideReason(ReasonTabSwitched), fx)
	fx.stageSave(prev, rec, e.clock.Now())
}

// TabRemoved drops a closed tab from every domain's membership. A domain
// whose last tab closed loses its state. When the active tab closed but its
// domain still has tabs, the browser is asked shortly after which tab took
// over.
func (e *Engine) TabRemoved(ctx context.Context, tabID int) {
	if tabID <= 0 {
		e.log.Warn("ignoring tab removal with invalid tab id", "tab_id", tabID)
		return
	}

	fx := newEffects()
	e.mu.Lock()
	changed := false
	domainStillOpen := ""
	e.registry.ForEach(func(domain string, rec *DomainRecord) {
		if !rec.HasTab(tabID) {
			return
		}
		isActive := tabID == e.activeTabID && domain == e.activeDomain
		if e.registry.RemoveTab(domain, tabID) {
			e.log.Info("last tab closed for domain, clearing state", "domain", domain)
		} else if isActive {
			domainStillOpen = domain
		}
		changed = true
	})
	if changed {
		fx.stageSaveAll(e.registry, e.clock.Now())
	}

	if tabID == e.activeTabID {
		e.activeTabID = 0
		if domainStillOpen != "" {
			// Another tab becomes active; ask the browser which one.
			if e.recheckTimer != nil {
				e.recheckTimer.Stop()
			}
			e.recheckTimer = e.clock.AfterFunc(activeTabRecheckDelay, e.recheckActiveTab)
		} else {
			e.activeDomain = ""
		}
	}
	e.mu.Unlock()

	e.tabs.Forget(tabID)
	e.applyEffects(ctx, fx)
}

func (e *Engine) recheckActiveTab() {
	ctx := context.Background()
	tab, ok, err := e.browser.ActiveTab(ctx)
	if err != nil {
		e.log.Warn("failed to find new active tab", "err", err)
		return
	}
	if ok {
		e.TabActivated(ctx, tab.ID)
	}
}

// VisibilityChanged handles a tab's page visibility flipping (another window
// covering it, OS-level minimize). Only the active tab matters.
func (e *Engine) VisibilityChanged(ctx context.Context, domain string, tabID int, visible bool) {
	fx := newEffects()
	e.mu.Lock()
	rec := e.registry.Get(domain)
	if rec == nil || tabID != e.activeTabID {
		e.mu.Unlock()
		return
	}
	old := rec.LastVisibilityState
	rec.LastVisibilityState = visible
	e.applyPauseStateLocked(domain, noOverride(), fx)
	if old != visible {
		fx.stageSave(domain, rec, e.clock.Now())
	}
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}
