package focus

import (
	"context"

	"github.com/nrednav/cuid2"

	"github.com/focusfinder/server/lib/webdomain"
)

// checkDomainStatusLocked runs the watchlist gate for a tab that landed on a
// domain. Fresh or reopened watched domains get an intention prompt,
// recovered domains must re-confirm, live domains get the widget pushed into
// the new tab.
func (e *Engine) checkDomainStatusLocked(tabID int, domain string, fx *effects) {
	if domain == "" {
		return
	}
	if !webdomain.IsWatched(domain, e.settings.Watchlist) {
		if rec := e.registry.Get(domain); rec != nil {
			e.applyPauseStateLocked(domain, overrideReason(ReasonNotWatched), fx)
			fx.stageSave(domain, rec, e.clock.Now())
		}
		return
	}

	rec := e.registry.Get(domain)
	wasEnded := rec != nil && rec.PauseReason == ReasonSessionEnded
	recovered := rec != nil && rec.PauseReason == ReasonSessionRecovery

	switch {
	case rec == nil || rec.TabCount() == 0 || wasEnded:
		// First visit of a session, or the domain was fully closed before.
		if !e.settings.IsExtensionEnabled {
			return
		}
		e.requestIntentionLocked(domain, tabID, fx)
		preservePosition := rec != nil && !wasEnded
		rec = e.registry.CreateForNewVisit(domain, tabID, preservePosition, e.clock.Now())
		fx.stageSave(domain, rec, e.clock.Now())

	case recovered:
		// State survived a restart; the user confirms before time counts.
		e.registry.AddTab(domain, tabID)
		e.requestIntentionLocked(domain, tabID, fx)
		rec.IsPaused = true
		rec.PauseReason = ReasonNoIntention
		rec.IntentionSet = false
		// No time accrues until the user re-confirms.
		rec.IsTracking = false
		fx.stageSave(domain, rec, e.clock.Now())

	default:
		e.registry.AddTab(domain, tabID)
		switch {
		case rec.IntentionSet && e.settings.IsExtensionEnabled:
			fx.pushUI(domain, tabID, newInitializeWidget(rec.snapshot()))
			if tabID == e.activeTabID {
				if e.settings.PauseOnBlur {
					// A fresh activation must not be eaten by the focus
					// flicker it causes.
					rec.IgnorePauseOnBlurUntil = e.clock.Now().Add(tabActivationImmunity)
					if rec.IsPaused && rec.PauseReason != ReasonUserPaused && rec.PauseReason != ReasonExtensionDisabled {
						rec.IsPaused = false
						rec.PauseReason = ReasonNone
						fx.broadcast(domain, rec, newTimerResumed())
					}
				}
				e.applyPauseStateLocked(domain, noOverride(), fx)
				fx.stageSave(domain, rec, e.clock.Now())
			}
		case !rec.IntentionSet && e.settings.IsExtensionEnabled && tabID == e.activeTabID:
			e.requestIntentionLocked(domain, tabID, fx)
			rec.IsPaused = true
			rec.PauseReason = ReasonNoIntention
			fx.stageSave(domain, rec, e.clock.Now())
		}
	}
}

func (e *Engine) requestIntentionLocked(domain string, tabID int, fx *effects) {
	fx.pushUI(domain, tabID, newShowIntentionPrompt(domain, e.settings.AllReasons()))
}

// SetIntention starts a tracking session: the user confirmed why they are
// here and for how long. The timer restarts from zero with a fresh session
// id, and the tick scheduler is realigned so the first second is full.
func (e *Engine) SetIntention(ctx context.Context, domain, intention string, durationSeconds, tabID int) {
	fx := newEffects()
	e.mu.Lock()
	rec := e.registry.Get(domain)
	if rec == nil {
		rec = e.registry.CreateBare(domain, e.clock.Now())
	}
	rec.Intention = intention
	rec.ReminderTime = durationSeconds
	if rec.ReminderTime <= 0 {
		rec.ReminderTime = defaultReminderSeconds
	}
	rec.TimeSpent = 0
	rec.IntentionSet = true
	rec.ReminderShown = false
	rec.IsTracking = true
	rec.IsPaused = false
	rec.PauseReason = ReasonNone
	rec.SessionID = cuid2.Generate()
	e.registry.AddTab(domain, tabID)

	// Confirming the dialog steals focus for a moment.
	rec.IgnorePauseOnBlurUntil = e.clock.Now().Add(intentionImmunity)
	e.applyPauseStateLocked(domain, overrideResume(), fx)
	fx.stageSave(domain, rec, e.clock.Now())
	fx.broadcast(domain, rec, newIntentionConfirmed(rec.Intention, rec.ReminderTime))
	resetTicker := e.resetTicker
	e.mu.Unlock()

	e.applyEffects(ctx, fx)
	if resetTicker != nil {
		resetTicker()
	}
	e.log.Info("tracking started", "domain", domain, "reminder_seconds", durationSeconds)
}

// ExtendTime adds minutes to a domain's reminder budget. The second and
// later extensions require confirmation unless force is set.
func (e *Engine) ExtendTime(ctx context.Context, domain string, minutes int, force bool) {
	fx := newEffects()
	e.mu.Lock()
	rec := e.registry.Get(domain)
	if rec == nil {
		e.mu.Unlock()
		return
	}
	if rec.HasExtended && !force {
		fx.broadcast(domain, rec, newShowExtendConfirmation(minutes))
		e.mu.Unlock()
		e.applyEffects(ctx, fx)
		return
	}

	rec.ReminderTime += minutes * 60
	rec.IsTracking = true
	rec.IsPaused = false
	rec.PauseReason = ReasonNone
	rec.ReminderShown = false
	rec.HasExtended = true
	newReminder := rec.ReminderTime
	fx.stageSave(domain, rec, e.clock.Now())
	fx.broadcast(domain, rec, newTimerExtended(newReminder, minutes))
	e.mu.Unlock()

	e.applyEffects(ctx, fx)
	e.log.Info("time extended", "domain", domain, "minutes", minutes, "new_reminder_seconds", newReminder)
}

// CloseAllTabs ends a browsing session: every tab of the domain closes and
// the domain's state is wiped so a later revisit starts fresh. Only the
// widget position survives. While the tabs are being closed the record holds
// a sessionEnded marker so a racing revisit also starts fresh.
func (e *Engine) CloseAllTabs(ctx context.Context, domain string) error {
	e.mu.Lock()
	rec := e.registry.Get(domain)
	if rec == nil {
		e.mu.Unlock()
		return nil
	}
	tabIDs := rec.Tabs()
	marker := newRecord(e.clock.Now(), rec.WidgetPosition)
	marker.IsPaused = true
	marker.PauseReason = ReasonSessionEnded
	e.registry.Put(domain, marker)
	// The marker is staged before any tab closes. It never actually reaches
	// disk: with no intention and no tracking the persistence filter drops
	// it, and the storage row is deleted outright below.
	fx := newEffects()
	fx.stageSave(domain, marker, e.clock.Now())
	e.mu.Unlock()
	e.applyEffects(ctx, fx)

	for _, tabID := range tabIDs {
		if err := e.browser.CloseTab(ctx, tabID); err != nil {
			e.log.Warn("failed to close tab", "err", err, "tab_id", tabID, "domain", domain)
			continue
		}
		e.tabs.Forget(tabID)
	}

	e.mu.Lock()
	e.registry.Delete(domain)
	if e.activeDomain == domain {
		e.activeDomain = ""
	}
	e.mu.Unlock()

	if err := e.store.DeleteDomain(ctx, domain); err != nil {
		e.log.Error("failed to delete domain state", "err", err, "domain", domain)
	}
	e.log.Info("browsing session ended", "domain", domain, "tabs_closed", len(tabIDs))
	return nil
}

// LoadPersisted restores domain records saved by a previous run. Restored
// records come back paused for recovery; tab membership is rebuilt when the
// browser connects.
func (e *Engine) LoadPersisted(ctx context.Context) error {
	snaps, err := e.store.Load(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	for domain, snap := range snaps {
		e.registry.Put(domain, recordFromSnapshot(snap, e.clock.Now()))
	}
	n := e.registry.Len()
	e.mu.Unlock()
	e.log.Info("restored domain states", "count", n)
	return nil
}

// ReconcileTabs aligns restored records with the tabs actually open in the
// browser. Records with no surviving tabs are dropped, then the active tab
// goes through the regular status check. Runs every time the browser shim
// connects.
func (e *Engine) ReconcileTabs(ctx context.Context) {
	tabs, err := e.browser.QueryTabs(ctx)
	if err != nil {
		e.log.Error("failed to query tabs for reconciliation", "err", err)
		return
	}

	fx := newEffects()
	e.mu.Lock()
	for _, tab := range tabs {
		if tab.URL == "" || tab.ID <= 0 {
			continue
		}
		domain := webdomain.Extract(tab.URL)
		if domain == "" || e.registry.Get(domain) == nil {
			continue
		}
		e.registry.AddTab(domain, tab.ID)
		if tab.Active {
			e.activeTabID = tab.ID
			e.activeDomain = domain
		}
	}
	var orphaned []string
	e.registry.ForEach(func(domain string, rec *DomainRecord) {
		if rec.TabCount() == 0 {
			orphaned = append(orphaned, domain)
		}
	})
	for _, domain := range orphaned {
		e.log.Info("dropping restored domain with no open tabs", "domain", domain)
		e.registry.Delete(domain)
	}
	fx.stageSaveAll(e.registry, e.clock.Now())
	e.mu.Unlock()
	e.applyEffects(ctx, fx)

	// The active tab decides what is being tracked right now.
	if tab, ok, err := e.browser.ActiveTab(ctx); err == nil && ok {
		e.TabActivated(ctx, tab.ID)
	} else if err != nil {
		e.log.Warn("failed to resolve active tab after reconciliation", "err", err)
	}
}

// SweepInvalidTabs removes tab ids the browser no longer knows from every
// domain's membership. Runs periodically so dead ids never accumulate.
func (e *Engine) SweepInvalidTabs(ctx context.Context) {
	tabs, err := e.browser.QueryTabs(ctx)
	if err != nil {
		e.log.Warn("failed to query tabs for sweep", "err", err)
		return
	}
	live := make(map[int]struct{}, len(tabs))
	for _, tab := range tabs {
		if tab.ID > 0 {
			live[tab.ID] = struct{}{}
		}
	}

	fx := newEffects()
	e.mu.Lock()
	removed := 0
	e.registry.ForEach(func(domain string, rec *DomainRecord) {
		for _, tabID := range rec.Tabs() {
			if _, ok := live[tabID]; ok {
				continue
			}
			if e.registry.RemoveTab(domain, tabID) {
				e.log.Info("no valid tabs left for domain after sweep, deleting state", "domain", domain)
			}
			removed++
		}
	})
	if removed > 0 {
		fx.stageSaveAll(e.registry, e.clock.Now())
	}
	e.mu.Unlock()
	if removed > 0 {
		e.log.Info("swept dead tab ids", "count", removed)
		e.applyEffects(ctx, fx)
	}
}

// Flush writes all trackable domain states to storage. Runs periodically and
// on shutdown.
func (e *Engine) Flush(ctx context.Context) {
	fx := newEffects()
	e.mu.Lock()
	fx.stageSaveAll(e.registry, e.clock.Now())
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}
