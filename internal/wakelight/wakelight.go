// Package wakelight simulates a sunrise in one room before the real one:
// a daily ramp from warm and dim to daylight and full brightness, followed
// by an automatic or manual dim-then-off dismissal.
package wakelight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/event"
	"github.com/dokzlo13/hubd/internal/ledger"
	"github.com/dokzlo13/hubd/internal/policy"
	"github.com/dokzlo13/hubd/internal/scheduler"
	"github.com/dokzlo13/hubd/internal/site"
	"github.com/dokzlo13/hubd/internal/transition"
)

// ScheduleID is the daily schedule that starts the ramp.
const ScheduleID = "wake_light"

// Dispatcher sends settings to a room's devices.
type Dispatcher interface {
	Dispatch(ctx context.Context, room *site.Room, settings policy.LightSettings) (int, error)
}

// Config tunes the wake light.
type Config struct {
	Room         string
	Buffer       time.Duration // ramp starts at sunrise - Buffer
	Span         time.Duration // ramp length
	Grace        time.Duration // full brightness hold before auto-dismiss
	Step         time.Duration // ramp update interval
	DismissDelay time.Duration // pause between the dim and off steps
	Warm         int
	Daylight     int
}

func (c Config) start() transition.Waypoint { return transition.Waypoint{Kelvin: c.Warm, Brightness: 1} }
func (c Config) end() transition.Waypoint   { return transition.Waypoint{Kelvin: c.Daylight, Brightness: 100} }

// Light runs at most one ramp a day. Dismissal is idempotent per local date
// and is recorded in the ledger so restarts do not replay it.
type Light struct {
	cfg        Config
	sites      *site.Provider
	dispatcher Dispatcher
	ledger     *ledger.Ledger
	tz         *time.Location
	now        func() time.Time

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	dismissed string // local date of the last dismissal
}

// New creates a wake light. tz decides what "today" means.
func New(cfg Config, sites *site.Provider, dispatcher Dispatcher, l *ledger.Ledger, tz *time.Location) *Light {
	if tz == nil {
		tz = time.Local
	}
	if cfg.Step <= 0 {
		cfg.Step = 30 * time.Second
	}
	return &Light{
		cfg:        cfg,
		sites:      sites,
		dispatcher: dispatcher,
		ledger:     l,
		tz:         tz,
		now:        time.Now,
	}
}

// Expr is the daily time expression that starts the ramp.
func (l *Light) Expr() string {
	return fmt.Sprintf("@sunrise - %dm", int(l.cfg.Buffer.Minutes()))
}

// Register adds the daily start schedule.
func (l *Light) Register(s *scheduler.Scheduler) error {
	return s.Daily(ScheduleID, l.Expr(), l.onSchedule, "wake", scheduler.MisfirePolicyRunLatest)
}

// Running reports whether a ramp is in progress.
func (l *Light) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *Light) today() string {
	return l.now().In(l.tz).Format("2006-01-02")
}

func dismissKey(date string) string { return "wake/" + date }

func (l *Light) dismissedToday(date string) bool {
	if l.dismissed == date {
		return true
	}
	return l.ledger != nil && l.ledger.Has(ledger.EventWakeDismissed, dismissKey(date))
}

func (l *Light) onSchedule(ctx context.Context, occ *scheduler.Occurrence) {
	// A misfire recovered long after its time would light the room mid-morning
	if late := l.now().Sub(occ.Time); late > l.cfg.Span+l.cfg.Grace {
		log.Info().Dur("late", late).Msg("Wake light occurrence too old, skipping")
		return
	}
	l.Start(ctx)
}

// Start runs the ramp in the calling goroutine until it is dismissed or ctx
// ends. It returns immediately if today was already dismissed or started.
func (l *Light) Start(ctx context.Context) {
	date := l.today()

	l.mu.Lock()
	if l.running || l.dismissedToday(date) {
		l.mu.Unlock()
		log.Debug().Str("date", date).Msg("Wake light already handled today")
		return
	}
	if l.ledger != nil {
		first, err := l.ledger.MarkOnce(ledger.EventWakeStarted, dismissKey(date), "schedule", map[string]any{"room": l.cfg.Room})
		if err != nil {
			l.mu.Unlock()
			log.Error().Err(err).Msg("Failed to record wake light start")
			return
		}
		if !first {
			l.mu.Unlock()
			log.Debug().Str("date", date).Msg("Wake light already started today")
			return
		}
	}
	rampCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.running = true
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	log.Info().Str("room", l.cfg.Room).Dur("span", l.cfg.Span).Msg("Wake light started")

	auto := l.ramp(rampCtx)

	l.mu.Lock()
	l.running = false
	l.cancel = nil
	l.done = nil
	l.mu.Unlock()
	cancel()
	close(done)

	if auto {
		if _, err := l.Dismiss(ctx, "auto"); err != nil {
			log.Error().Err(err).Msg("Wake light auto-dismiss failed")
		}
	}
}

// ramp steps the room from the start to the end waypoint and then holds for
// the grace period. It returns true when the grace period ran out.
func (l *Light) ramp(ctx context.Context) bool {
	started := l.now()
	ticker := time.NewTicker(l.cfg.Step)
	defer ticker.Stop()

	for {
		pos := transition.Position(float64(l.now().Sub(started)), float64(l.cfg.Span))
		wp := transition.Between(l.cfg.start(), l.cfg.end(), pos)
		l.dispatch(ctx, policy.Temperature{Kelvin: wp.Kelvin, Brightness: wp.Brightness})
		if pos >= 1 {
			break
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}

	log.Debug().Str("room", l.cfg.Room).Dur("grace", l.cfg.Grace).Msg("Wake light at full brightness")
	grace := time.NewTimer(l.cfg.Grace)
	defer grace.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-grace.C:
		return true
	}
}

// Dismiss ends today's wake light with a dim step, a short pause and an off
// step. It reports false when today was already dismissed. Dismissing before
// the ramp starts suppresses today's ramp without touching the lights.
func (l *Light) Dismiss(ctx context.Context, source string) (bool, error) {
	date := l.today()

	l.mu.Lock()
	if l.dismissed == date {
		l.mu.Unlock()
		return false, nil
	}
	if l.ledger != nil {
		first, err := l.ledger.MarkOnce(ledger.EventWakeDismissed, dismissKey(date), source, map[string]any{"room": l.cfg.Room})
		if err != nil {
			l.mu.Unlock()
			return false, fmt.Errorf("record wake light dismissal: %w", err)
		}
		if !first {
			l.dismissed = date
			l.mu.Unlock()
			return false, nil
		}
	}
	l.dismissed = date
	wasRunning := l.running
	if l.cancel != nil {
		l.cancel()
	}
	done := l.done
	l.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return true, ctx.Err()
		}
	}

	log.Info().Str("room", l.cfg.Room).Str("source", source).Bool("was_running", wasRunning).Msg("Wake light dismissed")
	if !wasRunning && source != "auto" {
		return true, nil
	}

	// The sequence outlives the request that asked for it
	seqCtx := context.WithoutCancel(ctx)
	l.dispatch(seqCtx, policy.Temperature{Kelvin: l.cfg.Warm, Brightness: 1})
	t := time.NewTimer(l.cfg.DismissDelay)
	<-t.C
	l.dispatch(seqCtx, policy.Switch{On: false})
	return true, nil
}

func (l *Light) dispatch(ctx context.Context, settings policy.LightSettings) {
	s := l.sites.Current()
	if s == nil {
		return
	}
	room, ok := s.Room(l.cfg.Room)
	if !ok {
		log.Warn().Str("room", l.cfg.Room).Msg("Wake light room not in site")
		return
	}
	if _, err := l.dispatcher.Dispatch(ctx, room, settings); err != nil {
		log.Warn().Err(err).Str("room", room.ID).Str("settings", settings.String()).Msg("Wake light dispatch incomplete")
	}
}

// Run dismisses a running wake light when a switch in its room is turned off.
func (l *Light) Run(ctx context.Context, events <-chan event.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			sw, isSwitch := ev.(event.Switch)
			if !isSwitch || sw.On || !l.Running() {
				continue
			}
			s := l.sites.Current()
			if s == nil {
				continue
			}
			if room, ok := s.RoomOf(sw.Source()); !ok || room.ID != l.cfg.Room {
				continue
			}
			// Fixtures echo the state the ramp drives them to
			if d, ok := s.Device(sw.Source()); ok && d.Fixture {
				continue
			}
			go func(device string) {
				if _, err := l.Dismiss(ctx, "switch:"+device); err != nil {
					log.Error().Err(err).Str("device", device).Msg("Wake light dismiss failed")
				}
			}(ev.Source())
		}
	}
}
