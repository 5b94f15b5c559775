// Package focus implements the per-domain attention timer: intention capture,
// second-granularity tracking with a reminder budget, the pause/resume state
// machine and persistence of domain records across daemon restarts.
package focus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/focusfinder/server/lib/browser"
	"github.com/focusfinder/server/lib/hub"
	"github.com/focusfinder/server/lib/settings"
)

// StateStore persists domain records. The engine decides what is worth
// writing; the store writes what it is given.
type StateStore interface {
	Load(ctx context.Context) (map[string]Snapshot, error)
	SaveAll(ctx context.Context, snaps map[string]Snapshot) error
	SaveDomain(ctx context.Context, domain string, snap Snapshot) error
	DeleteDomain(ctx context.Context, domain string) error
}

// SettingsStore persists user settings after mutation through the engine.
type SettingsStore interface {
	Save(s settings.Settings) error
}

// TabSender delivers events to the UI surface of a single tab.
type TabSender interface {
	SendToTab(ctx context.Context, tabID int, event any) error
	Forget(tabID int)
}

// Engine owns all tracking state. Every entry point takes the single mutex,
// mutates records synchronously and collects side effects (broadcasts,
// widget pushes, persistence) that are performed after the lock is released.
type Engine struct {
	log           *slog.Logger
	clock         Clock
	store         StateStore
	settingsStore SettingsStore
	tabs          TabSender
	browser       browser.Commander

	mu            sync.Mutex
	registry      *Registry
	settings      settings.Settings
	activeDomain  string
	activeTabID   int
	windowFocused bool
	focusTimer    TimerHandle
	recheckTimer  TimerHandle
	resetTicker   func()
}

type Options struct {
	Log           *slog.Logger
	Clock         Clock
	Settings      settings.Settings
	Store         StateStore
	SettingsStore SettingsStore
	Tabs          TabSender
	Browser       browser.Commander
}

func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	clock := opts.Clock
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{
		log:           log,
		clock:         clock,
		store:         opts.Store,
		settingsStore: opts.SettingsStore,
		tabs:          opts.Tabs,
		browser:       opts.Browser,
		registry:      NewRegistry(),
		settings:      opts.Settings,
		windowFocused: true,
	}
}

// SetTickerReset installs the hook that restarts the tick scheduler after an
// intention is confirmed.
func (e *Engine) SetTickerReset(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetTicker = fn
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() settings.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// IsEnabled reports whether tracking is globally enabled.
func (e *Engine) IsEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.IsExtensionEnabled
}

// ActiveDomain returns the domain of the active tab, or "" when the active
// tab is untracked.
func (e *Engine) ActiveDomain() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeDomain
}

// DomainState returns the serializable state of a domain.
func (e *Engine) DomainState(domain string) (Snapshot, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := e.registry.Get(domain)
	if rec == nil {
		return Snapshot{}, false
	}
	return rec.snapshot(), true
}

// ToggleExtension flips global tracking on or off, persists the setting and
// re-evaluates every domain's pause state. Idempotent.
func (e *Engine) ToggleExtension(ctx context.Context, enable bool) settings.Settings {
	fx := newEffects()
	e.mu.Lock()
	e.settings.IsExtensionEnabled = enable
	s := e.settings
	e.reevaluateAllLocked(fx)
	e.mu.Unlock()

	if err := e.settingsStore.Save(s); err != nil {
		e.log.Error("failed to persist settings", "err", err)
	}
	e.applyEffects(ctx, fx)
	return s
}

// UpdateSettings merges a partial update, persists the result and, when
// pause-relevant fields changed, re-evaluates every domain.
func (e *Engine) UpdateSettings(ctx context.Context, u settings.Update) settings.Settings {
	fx := newEffects()
	e.mu.Lock()
	old := e.settings
	e.settings = old.Apply(u)
	s := e.settings
	if old.PauseOnBlur != s.PauseOnBlur || old.IsExtensionEnabled != s.IsExtensionEnabled {
		e.reevaluateAllLocked(fx)
	}
	e.mu.Unlock()

	if err := e.settingsStore.Save(s); err != nil {
		e.log.Error("failed to persist settings", "err", err)
	}
	e.applyEffects(ctx, fx)
	return s
}

// ApplyExternalSettings adopts settings changed outside the engine (the
// settings file was edited on disk). No save; the file is the source.
func (e *Engine) ApplyExternalSettings(ctx context.Context, s settings.Settings) {
	fx := newEffects()
	e.mu.Lock()
	old := e.settings
	e.settings = s
	if old.PauseOnBlur != s.PauseOnBlur || old.IsExtensionEnabled != s.IsExtensionEnabled {
		e.reevaluateAllLocked(fx)
	}
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}

// PauseTimer pauses a domain on the user's behalf. A manual pause revokes
// any blur immunity the domain held. An unknown domain is a no-op.
func (e *Engine) PauseTimer(ctx context.Context, domain string) {
	fx := newEffects()
	e.mu.Lock()
	if rec := e.registry.Get(domain); rec != nil {
		rec.IgnorePauseOnBlurUntil = time.Time{}
		e.applyPauseStateLocked(domain, overrideReason(ReasonUserPaused), fx)
		fx.stageSave(domain, rec, e.clock.Now())
	}
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}

// ResumeTimer resumes a user-paused domain. A short blur immunity covers the
// focus flicker caused by clicking the widget. An unknown domain is a no-op.
func (e *Engine) ResumeTimer(ctx context.Context, domain string) {
	fx := newEffects()
	e.mu.Lock()
	if rec := e.registry.Get(domain); rec != nil {
		rec.IgnorePauseOnBlurUntil = e.clock.Now().Add(resumeImmunity)
		e.applyPauseStateLocked(domain, overrideResume(), fx)
		fx.stageSave(domain, rec, e.clock.Now())
	}
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}

// SaveWidgetExpanded records whether the timer widget is expanded.
func (e *Engine) SaveWidgetExpanded(ctx context.Context, domain string, expanded bool) {
	fx := newEffects()
	e.mu.Lock()
	if rec := e.registry.Get(domain); rec != nil {
		rec.WidgetExpanded = expanded
		fx.stageSave(domain, rec, e.clock.Now())
	}
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}

// SaveWidgetPosition records the widget's screen corner for a domain.
func (e *Engine) SaveWidgetPosition(ctx context.Context, domain string, position WidgetPosition) error {
	if !ValidPosition(position) {
		return fmt.Errorf("invalid widget position %q", position)
	}
	fx := newEffects()
	e.mu.Lock()
	if rec := e.registry.Get(domain); rec != nil {
		rec.WidgetPosition = position
		fx.stageSave(domain, rec, e.clock.Now())
	}
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
	return nil
}

// reevaluateAllLocked re-runs the pause decision for every known domain.
func (e *Engine) reevaluateAllLocked(fx *effects) {
	e.registry.ForEach(func(domain string, rec *DomainRecord) {
		if e.applyPauseStateLocked(domain, noOverride(), fx) {
			fx.stageSave(domain, rec, e.clock.Now())
		}
	})
}

// --- Effects ---

// outbound is one staged broadcast: an event for every tab of a domain.
type outbound struct {
	domain string
	tabIDs []int
	event  any
}

// uiPush is a staged single-tab delivery that needs the widget present
// first (intention prompts, widget initialization).
type uiPush struct {
	domain string
	tabID  int
	event  any
}

// effects collects the side effects of one locked mutation. They run after
// the engine lock is released so slow I/O never blocks event handling.
type effects struct {
	events  []outbound
	ui      []uiPush
	saves   map[string]Snapshot
	deletes []string
	saveAll bool
	all     map[string]Snapshot
}

func newEffects() *effects {
	return &effects{saves: make(map[string]Snapshot)}
}

func (fx *effects) broadcast(domain string, rec *DomainRecord, event any) {
	if rec == nil || rec.TabCount() == 0 {
		return
	}
	fx.events = append(fx.events, outbound{domain: domain, tabIDs: rec.Tabs(), event: event})
}

func (fx *effects) pushUI(domain string, tabID int, event any) {
	fx.ui = append(fx.ui, uiPush{domain: domain, tabID: tabID, event: event})
}

// stageSave snapshots a record for persistence. Records that never got an
// intention and are not tracking are not worth a write.
func (fx *effects) stageSave(domain string, rec *DomainRecord, now time.Time) {
	if rec == nil {
		return
	}
	if !rec.IntentionSet && !rec.IsTracking {
		return
	}
	rec.LastUpdated = now
	fx.saves[domain] = rec.snapshot()
}

func (fx *effects) stageDelete(domain string) {
	delete(fx.saves, domain)
	fx.deletes = append(fx.deletes, domain)
}

// stageSaveAll replaces the whole persisted set. Untracked records and
// records without tabs are filtered out.
func (fx *effects) stageSaveAll(reg *Registry, now time.Time) {
	all := make(map[string]Snapshot)
	reg.ForEach(func(domain string, rec *DomainRecord) {
		if !rec.IntentionSet && !rec.IsTracking {
			return
		}
		if rec.TabCount() == 0 {
			return
		}
		rec.LastUpdated = now
		all[domain] = rec.snapshot()
	})
	fx.saveAll = true
	fx.all = all
}

func (e *Engine) applyEffects(ctx context.Context, fx *effects) {
	if fx == nil {
		return
	}
	for domain, snap := range fx.saves {
		if err := e.store.SaveDomain(ctx, domain, snap); err != nil {
			e.log.Error("failed to save domain state", "err", err, "domain", domain)
		}
	}
	for _, domain := range fx.deletes {
		if err := e.store.DeleteDomain(ctx, domain); err != nil {
			e.log.Error("failed to delete domain state", "err", err, "domain", domain)
		}
	}
	if fx.saveAll {
		if err := e.store.SaveAll(ctx, fx.all); err != nil {
			e.log.Error("failed to save domain states", "err", err)
		}
	}

	for _, push := range fx.ui {
		if err := e.browser.EnsureWidget(ctx, push.tabID); err != nil {
			e.log.Warn("widget injection failed", "err", err, "tab_id", push.tabID, "domain", push.domain)
			continue
		}
		if err := e.tabs.SendToTab(ctx, push.tabID, push.event); err != nil {
			e.handleSendError(ctx, push.domain, push.tabID, err)
		}
	}

	if len(fx.events) == 0 {
		return
	}
	type deadTab struct {
		domain string
		tabID  int
	}
	var (
		deadMu sync.Mutex
		dead   []deadTab
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, ev := range fx.events {
		for _, tabID := range ev.tabIDs {
			g.Go(func() error {
				err := e.tabs.SendToTab(gctx, tabID, ev.event)
				if errors.Is(err, hub.ErrTabGone) {
					deadMu.Lock()
					dead = append(dead, deadTab{domain: ev.domain, tabID: tabID})
					deadMu.Unlock()
				}
				return nil
			})
		}
	}
	_ = g.Wait()
	for _, d := range dead {
		e.purgeTab(ctx, d.domain, d.tabID)
	}
}

func (e *Engine) handleSendError(ctx context.Context, domain string, tabID int, err error) {
	switch {
	case errors.Is(err, hub.ErrTabGone):
		e.log.Warn("tab surface gone, dropping tab", "tab_id", tabID, "domain", domain)
		e.purgeTab(ctx, domain, tabID)
	case errors.Is(err, hub.ErrNotConnected):
		// Surface not attached yet; it will pull state once it connects.
	default:
		e.log.Warn("failed to deliver event to tab", "err", err, "tab_id", tabID, "domain", domain)
	}
}

// purgeTab removes a dead tab from a domain's membership and deletes the
// record (memory and storage) when it was the last one.
func (e *Engine) purgeTab(ctx context.Context, domain string, tabID int) {
	e.mu.Lock()
	deleted := e.registry.RemoveTab(domain, tabID)
	e.mu.Unlock()
	if deleted {
		e.log.Info("no tabs left for domain after send failure, deleting state", "domain", domain)
		if err := e.store.DeleteDomain(ctx, domain); err != nil {
			e.log.Error("failed to delete domain state", "err", err, "domain", domain)
		}
	}
}
