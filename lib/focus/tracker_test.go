package focus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/focusfinder/server/lib/browser"
)

func TestTabSwitchPausesPreviousDomain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com", "youtube.com"))
	h.startSession(ctx, 1, "https://reddit.com/r/golang", "reddit.com", "Messaging", 300)

	h.openTab(ctx, 2, "https://youtube.com/watch?v=abc", true)

	snap, _ := h.engine.DomainState("reddit.com")
	assert.True(t, snap.IsPaused)
	assert.Equal(t, ReasonTabSwitched, snap.PauseReason)
	assert.Equal(t, "youtube.com", h.engine.ActiveDomain())

	ev, ok := h.tabs.lastEvent(1, ActionTimerPaused)
	require.True(t, ok)
	assert.Equal(t, ReasonTabSwitched, ev.(TimerPausedEvent).Reason)
}

func TestTabActivationResumesAndInjectsWidget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com", "youtube.com"))
	h.startSession(ctx, 1, "https://reddit.com/r/golang", "reddit.com", "Messaging", 300)
	h.openTab(ctx, 2, "https://youtube.com/watch?v=abc", true)

	// Back to the reddit tab.
	h.browser.addTab(browser.Tab{ID: 1, URL: "https://reddit.com/r/golang", Active: true})
	h.engine.TabActivated(ctx, 1)

	assert.Equal(t, "reddit.com", h.engine.ActiveDomain())
	snap, _ := h.engine.DomainState("reddit.com")
	assert.False(t, snap.IsPaused)

	_, ok := h.tabs.lastEvent(1, ActionInitializeWidget)
	assert.True(t, ok)
	_, ok = h.tabs.lastEvent(1, ActionTimerResumed)
	assert.True(t, ok)

	h.engine.Tick(ctx)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.Equal(t, 1, snap.TimeSpent)
}

func TestActivatingUntrackedTabPausesActiveDomain(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	h.browser.addTab(browser.Tab{ID: 3, URL: "", Active: true})
	h.engine.TabActivated(ctx, 3)

	assert.Empty(t, h.engine.ActiveDomain())
	snap, _ := h.engine.DomainState("reddit.com")
	assert.True(t, snap.IsPaused)
	assert.Equal(t, ReasonTabSwitched, snap.PauseReason)
}

func TestNavigationMovesTabBetweenDomains(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com", "youtube.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	// The same tab navigates to another watched domain; reddit's only tab is
	// gone, so its state goes too.
	h.openTab(ctx, 1, "https://youtube.com/feed", true)

	_, ok := h.engine.DomainState("reddit.com")
	assert.False(t, ok)
	snap, ok := h.engine.DomainState("youtube.com")
	require.True(t, ok)
	assert.Equal(t, []int{1}, snap.TabIDs)

	_, ok = h.store.get("reddit.com")
	assert.False(t, ok, "bulk save after navigation drops the dead domain")
}

func TestNavigationToUntrackedURLDropsMembership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	// The tracked domain's only tab navigates to a page with no domain at
	// all. Membership must still be cleaned up and the emptied record
	// deleted, same as navigating to another tracked domain.
	h.engine.TabUpdated(ctx, 1, "chrome://newtab", true)

	_, ok := h.engine.DomainState("reddit.com")
	assert.False(t, ok, "record with zero tabs must be deleted")
	assert.Empty(t, h.engine.ActiveDomain())

	_, ok = h.store.get("reddit.com")
	assert.False(t, ok, "bulk save after navigation drops the dead domain")
}

func TestTabRemovedClearsLastTabState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	h.engine.TabRemoved(ctx, 1)

	_, ok := h.engine.DomainState("reddit.com")
	assert.False(t, ok)
	assert.Empty(t, h.engine.ActiveDomain())
	h.tabs.mu.Lock()
	assert.Contains(t, h.tabs.forgotten, 1)
	h.tabs.mu.Unlock()
	_, ok = h.store.get("reddit.com")
	assert.False(t, ok)
}

func TestActiveTabCloseFallsBackToSiblingTab(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com/r/golang", "reddit.com", "Messaging", 300)
	h.openTab(ctx, 2, "https://reddit.com/r/programming", false)

	snap, _ := h.engine.DomainState("reddit.com")
	require.Equal(t, []int{1, 2}, snap.TabIDs)

	// The browser activates the sibling when the active tab closes.
	h.browser.mu.Lock()
	delete(h.browser.tabs, 1)
	h.browser.mu.Unlock()
	h.browser.addTab(browser.Tab{ID: 2, URL: "https://reddit.com/r/programming", Active: true})

	h.engine.TabRemoved(ctx, 1)
	h.clock.Advance(activeTabRecheckDelay)

	assert.Equal(t, "reddit.com", h.engine.ActiveDomain())
	snap, _ = h.engine.DomainState("reddit.com")
	assert.Equal(t, []int{2}, snap.TabIDs)
	assert.False(t, snap.IsPaused)

	h.engine.Tick(ctx)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.Equal(t, 1, snap.TimeSpent)
}

func TestVisibilityChangeOnActiveTabIsRecorded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	h.engine.VisibilityChanged(ctx, "reddit.com", 1, false)

	snap, _ := h.engine.DomainState("reddit.com")
	assert.False(t, snap.LastVisibilityState)
	stored, ok := h.store.get("reddit.com")
	require.True(t, ok)
	assert.False(t, stored.LastVisibilityState)

	// Events for a non-active tab are ignored.
	h.engine.VisibilityChanged(ctx, "reddit.com", 99, true)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.False(t, snap.LastVisibilityState)
}

func TestInvalidTabIDsAreRejected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	h.engine.TabUpdated(ctx, 0, "https://reddit.com", true)
	h.engine.TabActivated(ctx, -1)
	h.engine.TabRemoved(ctx, 0)

	snap, ok := h.engine.DomainState("reddit.com")
	require.True(t, ok)
	assert.Equal(t, []int{1}, snap.TabIDs)
	assert.Equal(t, "reddit.com", h.engine.ActiveDomain())
}
