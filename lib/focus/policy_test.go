package focus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecidePause(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	running := pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "reddit.com", windowFocused: true}

	tests := []struct {
		name       string
		rec        func() *DomainRecord
		env        pauseEnv
		ov         pauseOverride
		wantPaused bool
		wantReason PauseReason
		wantGrace  bool
	}{
		{
			name:       "disabled extension wins over everything",
			rec:        func() *DomainRecord { return newRecord(now, "") },
			env:        pauseEnv{enabled: false, activeDomain: "reddit.com", windowFocused: true},
			ov:         overrideResume(),
			wantPaused: true,
			wantReason: ReasonExtensionDisabled,
		},
		{
			name:       "explicit user pause",
			rec:        func() *DomainRecord { return newRecord(now, "") },
			env:        running,
			ov:         overrideReason(ReasonUserPaused),
			wantPaused: true,
			wantReason: ReasonUserPaused,
		},
		{
			name: "user pause is sticky against automatic evaluation",
			rec: func() *DomainRecord {
				r := newRecord(now, "")
				r.IsPaused = true
				r.PauseReason = ReasonUserPaused
				return r
			},
			env:        running,
			ov:         noOverride(),
			wantPaused: true,
			wantReason: ReasonUserPaused,
		},
		{
			name: "user pause is sticky against blur",
			rec: func() *DomainRecord {
				r := newRecord(now, "")
				r.IsPaused = true
				r.PauseReason = ReasonUserPaused
				return r
			},
			env:        pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "reddit.com", windowFocused: false},
			ov:         overrideReason(ReasonWindowBlurred),
			wantPaused: true,
			wantReason: ReasonUserPaused,
		},
		{
			name: "explicit resume clears a user pause",
			rec: func() *DomainRecord {
				r := newRecord(now, "")
				r.IsPaused = true
				r.PauseReason = ReasonUserPaused
				return r
			},
			env:        running,
			ov:         overrideResume(),
			wantPaused: false,
			wantReason: ReasonNone,
		},
		{
			name:       "verbatim override applies as-is",
			rec:        func() *DomainRecord { return newRecord(now, "") },
			env:        running,
			ov:         overrideReason(ReasonNotWatched),
			wantPaused: true,
			wantReason: ReasonNotWatched,
		},
		{
			name:       "inactive domain pauses as tab switched",
			rec:        func() *DomainRecord { return newRecord(now, "") },
			env:        pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "youtube.com", windowFocused: true},
			ov:         noOverride(),
			wantPaused: true,
			wantReason: ReasonTabSwitched,
		},
		{
			name:       "blurred window enters grace period",
			rec:        func() *DomainRecord { return newRecord(now, "") },
			env:        pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "reddit.com", windowFocused: false},
			ov:         noOverride(),
			wantPaused: true,
			wantReason: ReasonBlurGracePeriod,
			wantGrace:  true,
		},
		{
			name: "blur immunity keeps the timer running",
			rec: func() *DomainRecord {
				r := newRecord(now, "")
				r.IgnorePauseOnBlurUntil = now.Add(time.Second)
				return r
			},
			env:        pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "reddit.com", windowFocused: false},
			ov:         noOverride(),
			wantPaused: false,
			wantReason: ReasonNone,
		},
		{
			name: "expired immunity does not protect",
			rec: func() *DomainRecord {
				r := newRecord(now, "")
				r.IgnorePauseOnBlurUntil = now.Add(-time.Second)
				return r
			},
			env:        pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "reddit.com", windowFocused: false},
			ov:         noOverride(),
			wantPaused: true,
			wantReason: ReasonBlurGracePeriod,
			wantGrace:  true,
		},
		{
			name: "grace escalates to window blurred",
			rec: func() *DomainRecord {
				r := newRecord(now, "")
				r.IsPaused = true
				r.PauseReason = ReasonBlurGracePeriod
				return r
			},
			env:        pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "reddit.com", windowFocused: false},
			ov:         overrideReason(ReasonWindowBlurred),
			wantPaused: true,
			wantReason: ReasonWindowBlurred,
		},
		{
			name: "repeated blur keeps the current blur reason",
			rec: func() *DomainRecord {
				r := newRecord(now, "")
				r.IsPaused = true
				r.PauseReason = ReasonWindowBlurred
				return r
			},
			env:        pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "reddit.com", windowFocused: false},
			ov:         noOverride(),
			wantPaused: true,
			wantReason: ReasonWindowBlurred,
		},
		{
			name:       "pause on blur disabled ignores blur",
			rec:        func() *DomainRecord { return newRecord(now, "") },
			env:        pauseEnv{enabled: true, pauseOnBlur: false, activeDomain: "reddit.com", windowFocused: false},
			ov:         noOverride(),
			wantPaused: false,
			wantReason: ReasonNone,
		},
		{
			name: "active focused domain runs",
			rec: func() *DomainRecord {
				r := newRecord(now, "")
				r.IsPaused = true
				r.PauseReason = ReasonTabSwitched
				return r
			},
			env:        running,
			ov:         noOverride(),
			wantPaused: false,
			wantReason: ReasonNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := decidePause("reddit.com", tt.rec(), tt.env, tt.ov, now)
			assert.Equal(t, tt.wantPaused, d.paused)
			assert.Equal(t, tt.wantReason, d.reason)
			assert.Equal(t, tt.wantGrace, d.startGrace)
		})
	}
}

func TestResumeClearsImmunityWhenRunning(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := newRecord(now, "")
	rec.IgnorePauseOnBlurUntil = now.Add(resumeImmunity)
	env := pauseEnv{enabled: true, pauseOnBlur: true, activeDomain: "reddit.com", windowFocused: true}

	d := decidePause("reddit.com", rec, env, overrideResume(), now)
	assert.False(t, d.paused)
	assert.True(t, d.clearImmunity)
}

func TestBlurGraceFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	sentBefore := len(h.tabs.actions(t, 1))

	// Window loses focus; the grace period pauses silently.
	h.engine.WindowFocusChanged(false)
	h.clock.Advance(focusDebounce)

	snap, _ := h.engine.DomainState("reddit.com")
	assert.True(t, snap.IsPaused)
	assert.Equal(t, ReasonBlurGracePeriod, snap.PauseReason)
	assert.Len(t, h.tabs.actions(t, 1), sentBefore, "grace period must not broadcast")

	// The grace elapses; the pause becomes visible.
	h.clock.Advance(blurGracePeriod)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.Equal(t, ReasonWindowBlurred, snap.PauseReason)
	ev, ok := h.tabs.lastEvent(1, ActionTimerPaused)
	require.True(t, ok)
	assert.Equal(t, ReasonWindowBlurred, ev.(TimerPausedEvent).Reason)

	// A paused domain does not accumulate time.
	h.engine.Tick(ctx)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.Zero(t, snap.TimeSpent)

	// Refocus resumes.
	h.engine.WindowFocusChanged(true)
	h.clock.Advance(focusDebounce)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.False(t, snap.IsPaused)
	_, ok = h.tabs.lastEvent(1, ActionTimerResumed)
	assert.True(t, ok)
}

func TestRefocusWithinGraceCancelsEscalation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	h.engine.WindowFocusChanged(false)
	h.clock.Advance(focusDebounce)
	snap, _ := h.engine.DomainState("reddit.com")
	require.Equal(t, ReasonBlurGracePeriod, snap.PauseReason)

	// Focus returns inside the grace window.
	h.engine.WindowFocusChanged(true)
	h.clock.Advance(focusDebounce)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.False(t, snap.IsPaused)

	// The stale escalation never fires.
	h.clock.Advance(blurGracePeriod)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.False(t, snap.IsPaused)
	assert.Equal(t, ReasonNone, snap.PauseReason)

	// Counting continues.
	h.engine.Tick(ctx)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.Equal(t, 1, snap.TimeSpent)
}

func TestFocusFlickerIsDebounced(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	// Blur immediately followed by focus within the debounce window.
	h.engine.WindowFocusChanged(false)
	h.clock.Advance(focusDebounce / 2)
	h.engine.WindowFocusChanged(true)
	h.clock.Advance(focusDebounce)

	snap, _ := h.engine.DomainState("reddit.com")
	assert.False(t, snap.IsPaused)
	assert.Equal(t, ReasonNone, snap.PauseReason)

	h.engine.Tick(ctx)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.Equal(t, 1, snap.TimeSpent)
}

func TestResumeImmunityProtectsAgainstBlur(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t, watchedSettings("reddit.com"))
	h.startSession(ctx, 1, "https://reddit.com", "reddit.com", "Messaging", 300)

	// Blur fully, then pause and resume while blurred: the resume immunity
	// keeps the timer running despite the blurred window.
	h.engine.WindowFocusChanged(false)
	h.clock.Advance(focusDebounce)
	h.clock.Advance(blurGracePeriod)
	h.engine.PauseTimer(ctx, "reddit.com")

	h.engine.ResumeTimer(ctx, "reddit.com")
	snap, _ := h.engine.DomainState("reddit.com")
	assert.False(t, snap.IsPaused)

	// Once the immunity expires, the next blur pauses again.
	h.clock.Advance(resumeImmunity + time.Millisecond)
	h.engine.WindowFocusChanged(true)
	h.clock.Advance(focusDebounce)
	h.engine.WindowFocusChanged(false)
	h.clock.Advance(focusDebounce)
	h.clock.Advance(blurGracePeriod)
	snap, _ = h.engine.DomainState("reddit.com")
	assert.True(t, snap.IsPaused)
	assert.Equal(t, ReasonWindowBlurred, snap.PauseReason)
}
