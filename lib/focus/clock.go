package focus

import "time"

// Clock abstracts wall-clock reads and one-shot timers so the grace-period
// and debounce behavior can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) TimerHandle
}

// TimerHandle is a cancellable one-shot timer. Handles are single-slot:
// owners replace an outstanding handle instead of stacking a second one.
type TimerHandle interface {
	// Stop cancels the timer; it reports whether the call prevented the
	// function from running.
	Stop() bool
}

type systemClock struct{}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}
