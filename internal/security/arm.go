package security

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/ledger"
)

// ArmScheduler arms the house after a delay. Scheduling again resets the
// delay; cancelling before it fires leaves the state untouched.
type ArmScheduler struct {
	mu       sync.Mutex
	store    *Store
	ledger   *ledger.Ledger
	delay    time.Duration
	timer    *time.Timer
	deadline time.Time
	gen      uint64
}

// NewArmScheduler creates a scheduler arming store after delay.
func NewArmScheduler(store *Store, l *ledger.Ledger, delay time.Duration) *ArmScheduler {
	return &ArmScheduler{store: store, ledger: l, delay: delay}
}

// Schedule starts (or restarts) the delayed arm when arm is true and cancels it otherwise.
func (a *ArmScheduler) Schedule(arm bool, source string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stopLocked()
	if !arm {
		log.Info().Str("source", source).Msg("Delayed arm cancelled")
		a.audit(source, false)
		return
	}

	a.gen++
	gen := a.gen
	a.deadline = time.Now().Add(a.delay)
	a.timer = time.AfterFunc(a.delay, func() { a.fire(gen, source) })

	log.Info().Str("source", source).Dur("delay", a.delay).Msg("Delayed arm scheduled")
	a.audit(source, true)
}

// Pending returns when the house will arm, if an arm is scheduled.
func (a *ArmScheduler) Pending() (time.Time, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.deadline, a.timer != nil
}

// Stop cancels any pending arm without auditing.
func (a *ArmScheduler) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopLocked()
}

func (a *ArmScheduler) stopLocked() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.deadline = time.Time{}
	a.gen++
}

func (a *ArmScheduler) fire(gen uint64, source string) {
	a.mu.Lock()
	if gen != a.gen {
		a.mu.Unlock()
		return // reset or cancelled after the timer fired
	}
	a.timer = nil
	a.deadline = time.Time{}
	a.mu.Unlock()

	if err := a.store.Arm(context.Background(), source); err != nil {
		log.Error().Err(err).Msg("Delayed arm failed")
	}
}

func (a *ArmScheduler) audit(source string, arm bool) {
	if a.ledger == nil {
		return
	}
	if err := a.ledger.Append(ledger.EventArmScheduled, source, map[string]any{
		"arm":   arm,
		"delay": a.delay.String(),
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to audit arm request")
	}
}
