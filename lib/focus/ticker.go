package focus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Tick advances the active domain's timer by one counted second and emits
// the resulting timer updates and, once the budget is exhausted, the
// reminder. Inactive, paused and untracked domains never accumulate time.
func (e *Engine) Tick(ctx context.Context) {
	fx := newEffects()
	e.mu.Lock()
	e.tickLocked(fx)
	e.mu.Unlock()
	e.applyEffects(ctx, fx)
}

func (e *Engine) tickLocked(fx *effects) {
	if !e.settings.IsExtensionEnabled || e.activeDomain == "" {
		return
	}
	domain := e.activeDomain
	rec := e.registry.Get(domain)
	if rec == nil || !rec.IsTracking || rec.IsPaused {
		return
	}

	rec.TimeSpent++
	if rec.TimeSpent%persistEverySeconds == 0 {
		fx.stageSave(domain, rec, e.clock.Now())
	}

	isTimeUp := rec.TimeSpent >= rec.ReminderTime
	if isTimeUp && !rec.ReminderShown {
		rec.ReminderShown = true
		e.log.Info("reminder budget reached", "domain", domain, "time_spent", rec.TimeSpent)
		fx.stageSave(domain, rec, e.clock.Now())
		fx.broadcast(domain, rec, newShowReminder(rec.TimeSpent, rec.Intention, rec.ReminderTime))
	}

	fx.broadcast(domain, rec, newUpdateTimer(rec.TimeSpent, rec.ReminderTime, isTimeUp))
}

const (
	tickPrecision    = 100 * time.Millisecond
	watchdogInterval = time.Minute
	tickStaleAfter   = 3 * time.Second
	maxTickFallbacks = 3
)

// Scheduler drives Engine.Tick once per second using a high-frequency ticker
// so small delays never compound into drift. A watchdog detects a stalled
// loop, ticks directly as a stopgap and rebuilds the loop when the stall
// persists.
type Scheduler struct {
	log    *slog.Logger
	engine *Engine

	// Shrunk by tests.
	precision  time.Duration
	watchEvery time.Duration
	staleAfter time.Duration

	reset chan struct{}

	mu        sync.Mutex
	lastTick  time.Time
	fallbacks int
}

func NewScheduler(engine *Engine, log *slog.Logger) *Scheduler {
	return &Scheduler{
		log:        log,
		engine:     engine,
		precision:  tickPrecision,
		watchEvery: watchdogInterval,
		staleAfter: tickStaleAfter,
		reset:      make(chan struct{}, 1),
	}
}

// Start launches the tick loop and its watchdog. Both stop when ctx is
// canceled.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
	go s.watchdog(ctx)
}

// Reset restarts the tick loop with a clean accumulator, realigning the next
// counted second. Called after an intention is confirmed so the first second
// of a session is a full one.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	s.fallbacks = 0
	s.lastTick = time.Time{}
	s.mu.Unlock()
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.precision)
	defer ticker.Stop()
	var acc time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.reset:
			acc = 0
			ticker.Reset(s.precision)
		case <-ticker.C:
			acc += s.precision
			if acc >= time.Second {
				acc = 0
				s.safeTick(ctx)
			}
		}
	}
}

func (s *Scheduler) watchdog(ctx context.Context) {
	ticker := time.NewTicker(s.watchEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			last := s.lastTick
			s.mu.Unlock()
			if last.IsZero() {
				continue
			}
			gap := time.Since(last)
			if gap <= s.staleAfter {
				s.mu.Lock()
				s.fallbacks = 0
				s.mu.Unlock()
				continue
			}

			s.log.Warn("tick loop delayed, ticking directly", "gap", gap)
			s.safeTick(ctx)

			s.mu.Lock()
			s.fallbacks++
			failing := s.fallbacks > maxTickFallbacks
			s.mu.Unlock()
			if failing {
				s.log.Warn("tick loop repeatedly stalled, rebuilding")
				s.Reset()
			}
		}
	}
}

// safeTick runs one tick, isolating the loop from panics in downstream
// effect handling.
func (s *Scheduler) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked", "panic", r)
		}
	}()
	s.mu.Lock()
	s.lastTick = time.Now()
	s.mu.Unlock()
	s.engine.Tick(ctx)
}
