package occupancy

import "time"

// Clock creates idle timers. Tests substitute a manual clock.
type Clock interface {
	NewTimer(d time.Duration) Timer
}

// Timer is the subset of time.Timer the controller uses.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
}

// SystemClock uses real timers.
type SystemClock struct{}

func (SystemClock) NewTimer(d time.Duration) Timer {
	return systemTimer{time.NewTimer(d)}
}

type systemTimer struct{ t *time.Timer }

func (s systemTimer) C() <-chan time.Time { return s.t.C }
func (s systemTimer) Stop() bool          { return s.t.Stop() }
