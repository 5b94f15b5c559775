package focus

import (
	"sort"
	"time"
)

// Timing constants of the pause/tick machinery. The values come from the
// behavior the browser surfaces were built against; changing them changes
// user-visible pause semantics.
const (
	// How long a blurred window stays in the grace period before the timer
	// hard-pauses.
	blurGracePeriod = 4 * time.Second
	// Window focus flicker shorter than this is collapsed into one event.
	focusDebounce = 150 * time.Millisecond
	// Reminder budget used when the intention dialog supplies none.
	defaultReminderSeconds = 300
	// A tracked domain's progress is flushed every this many counted seconds.
	persistEverySeconds = 10
	// Persisted records older than this are discarded on load.
	staleStateCutoff = 6 * time.Hour
	// Blur immunity granted when an already-tracked tab becomes active.
	tabActivationImmunity = 500 * time.Millisecond
	// Blur immunity granted after the intention dialog confirms (covers the
	// focus flicker of the dialog closing).
	intentionImmunity = 2 * time.Second
	// Blur immunity granted after a manual resume.
	resumeImmunity = 1500 * time.Millisecond
	// How long to wait after the active tab closes before asking the browser
	// which tab took its place.
	activeTabRecheckDelay = 100 * time.Millisecond
)

// PauseReason explains why a domain's timer is not running. It is
// authoritative only while the record is paused.
type PauseReason string

const (
	ReasonNone              PauseReason = ""
	ReasonNoIntention       PauseReason = "noIntention"
	ReasonUserPaused        PauseReason = "userPaused"
	ReasonTabSwitched       PauseReason = "tabSwitched"
	ReasonWindowBlurred     PauseReason = "windowBlurred"
	ReasonBlurGracePeriod   PauseReason = "blurGracePeriod"
	ReasonExtensionDisabled PauseReason = "extensionDisabled"
	ReasonNotWatched        PauseReason = "notWatched"
	ReasonSessionEnded      PauseReason = "sessionEnded"
	ReasonSessionRecovery   PauseReason = "sessionRecovery"
)

// WidgetPosition is the persisted screen corner of the timer widget.
type WidgetPosition string

const (
	PositionBottomRight WidgetPosition = "bottom-right"
	PositionBottomLeft  WidgetPosition = "bottom-left"
	PositionTopLeft     WidgetPosition = "top-left"
	PositionTopRight    WidgetPosition = "top-right"
)

// ValidPosition reports whether p is one of the four widget corners.
func ValidPosition(p WidgetPosition) bool {
	switch p {
	case PositionBottomRight, PositionBottomLeft, PositionTopLeft, PositionTopRight:
		return true
	}
	return false
}

// DomainRecord is the tracking state of one watched domain. All fields are
// guarded by the owning Engine's mutex.
type DomainRecord struct {
	Intention     string
	IntentionSet  bool
	TimeSpent     int // counted seconds while tracking and unpaused
	ReminderTime  int // budget in seconds; extendable
	IsTracking    bool
	IsPaused      bool
	PauseReason   PauseReason
	ReminderShown bool

	TabIDs map[int]struct{}

	WidgetExpanded      bool
	WidgetPosition      WidgetPosition
	HasExtended         bool
	LastVisibilityState bool

	// Zero when no blur immunity is active.
	IgnorePauseOnBlurUntil time.Time

	SessionID   string
	LastUpdated time.Time

	// Pending grace-period escalation; single slot, replaced, never stacked.
	blurTimer TimerHandle
}

func newRecord(now time.Time, position WidgetPosition) *DomainRecord {
	if position == "" {
		position = PositionBottomRight
	}
	return &DomainRecord{
		ReminderTime:        defaultReminderSeconds,
		TabIDs:              make(map[int]struct{}),
		WidgetPosition:      position,
		LastVisibilityState: true,
		LastUpdated:         now,
	}
}

func (r *DomainRecord) hasImmunity(now time.Time) bool {
	return !r.IgnorePauseOnBlurUntil.IsZero() && now.Before(r.IgnorePauseOnBlurUntil)
}

// HasTab reports whether the given tab currently shows this domain.
func (r *DomainRecord) HasTab(tabID int) bool {
	_, ok := r.TabIDs[tabID]
	return ok
}

// TabCount returns the number of tabs showing this domain.
func (r *DomainRecord) TabCount() int { return len(r.TabIDs) }

// Tabs returns the member tab ids in ascending order.
func (r *DomainRecord) Tabs() []int {
	ids := make([]int, 0, len(r.TabIDs))
	for id := range r.TabIDs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (r *DomainRecord) stopBlurTimer() {
	if r.blurTimer != nil {
		r.blurTimer.Stop()
		r.blurTimer = nil
	}
}

// Snapshot is the serializable projection of a DomainRecord: what persistence
// stores, getDomainState returns and initializeWidget carries. Timer handles
// are not part of it; timestamps are millisecond epochs to match the wire
// format of the UI surfaces.
type Snapshot struct {
	Intention              string      `json:"intention"`
	IntentionSet           bool        `json:"intentionSet"`
	TimeSpent              int         `json:"timeSpent"`
	ReminderTime           int         `json:"reminderTime"`
	IsTracking             bool        `json:"isTracking"`
	IsPaused               bool        `json:"isPaused"`
	PauseReason            PauseReason `json:"pauseReason"`
	ReminderShown          bool        `json:"reminderShown"`
	TabIDs                 []int       `json:"tabIds"`
	WidgetExpanded         bool        `json:"widgetExpanded"`
	LastVisibilityState    bool        `json:"lastVisibilityState"`
	IgnorePauseOnBlurUntil int64       `json:"ignorePauseOnBlurUntil,omitempty"`
	WidgetPosition         string      `json:"widgetPosition"`
	HasExtended            bool        `json:"hasExtended"`
	SessionID              string      `json:"sessionId,omitempty"`
	LastUpdated            int64       `json:"lastUpdated"`
}

func (r *DomainRecord) snapshot() Snapshot {
	var immunity int64
	if !r.IgnorePauseOnBlurUntil.IsZero() {
		immunity = r.IgnorePauseOnBlurUntil.UnixMilli()
	}
	return Snapshot{
		Intention:              r.Intention,
		IntentionSet:           r.IntentionSet,
		TimeSpent:              r.TimeSpent,
		ReminderTime:           r.ReminderTime,
		IsTracking:             r.IsTracking,
		IsPaused:               r.IsPaused,
		PauseReason:            r.PauseReason,
		ReminderShown:          r.ReminderShown,
		TabIDs:                 r.Tabs(),
		WidgetExpanded:         r.WidgetExpanded,
		LastVisibilityState:    r.LastVisibilityState,
		IgnorePauseOnBlurUntil: immunity,
		WidgetPosition:         string(r.WidgetPosition),
		HasExtended:            r.HasExtended,
		SessionID:              r.SessionID,
		LastUpdated:            r.LastUpdated.UnixMilli(),
	}
}

// recordFromSnapshot rebuilds a record from storage. Recovered records are
// forced into a paused "session recovery" state with empty tab membership;
// tabs are re-attached by reconciliation against the live browser.
func recordFromSnapshot(snap Snapshot, now time.Time) *DomainRecord {
	rec := newRecord(now, WidgetPosition(snap.WidgetPosition))
	rec.Intention = snap.Intention
	rec.IntentionSet = snap.IntentionSet
	rec.TimeSpent = snap.TimeSpent
	if snap.ReminderTime > 0 {
		rec.ReminderTime = snap.ReminderTime
	}
	rec.IsTracking = snap.IsTracking
	rec.IsPaused = true
	rec.PauseReason = ReasonSessionRecovery
	rec.ReminderShown = snap.ReminderShown
	rec.WidgetExpanded = snap.WidgetExpanded
	rec.LastVisibilityState = snap.LastVisibilityState
	rec.HasExtended = snap.HasExtended
	rec.SessionID = snap.SessionID
	return rec
}
