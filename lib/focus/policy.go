package focus

import (
	"context"
	"time"
)

// pauseEnv is the slice of engine state the pause decision depends on.
type pauseEnv struct {
	enabled       bool
	pauseOnBlur   bool
	activeDomain  string
	windowFocused bool
}

// pauseOverride is the optional caller-supplied reason. An unset override
// means "evaluate automatically"; a set override with an empty reason is an
// explicit resume that breaks out of a sticky user pause.
type pauseOverride struct {
	set    bool
	reason PauseReason
}

func noOverride() pauseOverride { return pauseOverride{} }

func overrideResume() pauseOverride { return pauseOverride{set: true} }

func overrideReason(r PauseReason) pauseOverride { return pauseOverride{set: true, reason: r} }

type pauseDecision struct {
	paused bool
	reason PauseReason
	// Arm the grace escalation timer.
	startGrace bool
	// Cancel a pending escalation and drop any blur immunity; set when the
	// automatic evaluation lands on "running".
	clearBlur     bool
	clearImmunity bool
}

// decidePause computes the pause state of one domain. Precedence, highest
// first: extension disabled, explicit user pause, sticky user pause (only an
// explicit resume clears it), verbatim non-blur overrides, then the
// automatic evaluation (inactive tab, blurred window with grace period and
// immunity, otherwise running).
func decidePause(domain string, rec *DomainRecord, env pauseEnv, ov pauseOverride, now time.Time) pauseDecision {
	d := pauseDecision{reason: rec.PauseReason}

	switch {
	case !env.enabled:
		d.paused, d.reason = true, ReasonExtensionDisabled
	case ov.set && ov.reason == ReasonUserPaused:
		d.paused, d.reason = true, ReasonUserPaused
	case rec.PauseReason == ReasonUserPaused && !(ov.set && ov.reason == ReasonNone):
		d.paused, d.reason = true, ReasonUserPaused
	case ov.set && ov.reason != ReasonNone && ov.reason != ReasonWindowBlurred && ov.reason != ReasonBlurGracePeriod:
		d.paused, d.reason = true, ov.reason
	default:
		blurSignal := ov.set && (ov.reason == ReasonWindowBlurred || ov.reason == ReasonBlurGracePeriod)
		switch {
		case domain != env.activeDomain:
			d.paused, d.reason = true, ReasonTabSwitched
		case env.pauseOnBlur && (!env.windowFocused || blurSignal):
			if rec.hasImmunity(now) {
				d.paused, d.reason = false, ReasonNone
			} else {
				d.paused = true
				switch {
				case rec.PauseReason != ReasonWindowBlurred && rec.PauseReason != ReasonBlurGracePeriod:
					d.reason = ReasonBlurGracePeriod
					d.startGrace = true
				case ov.set && ov.reason == ReasonWindowBlurred:
					d.reason = ReasonWindowBlurred
				default:
					d.reason = rec.PauseReason
				}
			}
		default:
			d.paused, d.reason = false, ReasonNone
			d.clearBlur = true
			d.clearImmunity = true
		}
	}
	return d
}

// applyPauseStateLocked re-evaluates one domain's pause state, mutates the
// record and stages the resulting broadcast. A pause entering the grace
// period is silent; the broadcast happens only if the grace escalates.
// Returns whether the visible state changed.
func (e *Engine) applyPauseStateLocked(domain string, ov pauseOverride, fx *effects) bool {
	rec := e.registry.Get(domain)
	if rec == nil {
		return false
	}
	env := pauseEnv{
		enabled:       e.settings.IsExtensionEnabled,
		pauseOnBlur:   e.settings.PauseOnBlur,
		activeDomain:  e.activeDomain,
		windowFocused: e.windowFocused,
	}
	d := decidePause(domain, rec, env, ov, e.clock.Now())

	if d.clearBlur {
		rec.stopBlurTimer()
	}
	if d.clearImmunity {
		rec.IgnorePauseOnBlurUntil = time.Time{}
	}
	if d.startGrace {
		rec.stopBlurTimer()
		rec.blurTimer = e.clock.AfterFunc(blurGracePeriod, func() { e.onBlurGraceElapsed(domain) })
	}

	changed := d.paused != rec.IsPaused || d.reason != rec.PauseReason
	if !changed {
		return false
	}
	rec.IsPaused = d.paused
	rec.PauseReason = d.reason
	rec.LastUpdated = e.clock.Now()

	if !d.paused && d.reason != ReasonBlurGracePeriod {
		rec.stopBlurTimer()
	}
	switch {
	case d.paused && d.reason != ReasonBlurGracePeriod:
		fx.broadcast(domain, rec, newTimerPaused(d.reason))
	case !d.paused:
		fx.broadcast(domain, rec, newTimerResumed())
	}
	return true
}

// onBlurGraceElapsed escalates a grace-period pause into a full window-blur
// pause. The escalation only fires when the conditions that started the
// grace still hold.
func (e *Engine) onBlurGraceElapsed(domain string) {
	fx := newEffects()
	e.mu.Lock()
	rec := e.registry.Get(domain)
	if rec != nil && !e.windowFocused && domain == e.activeDomain && rec.PauseReason == ReasonBlurGracePeriod {
		if e.applyPauseStateLocked(domain, overrideReason(ReasonWindowBlurred), fx) {
			fx.stageSave(domain, rec, e.clock.Now())
		}
	}
	e.mu.Unlock()
	e.applyEffects(context.Background(), fx)
}
