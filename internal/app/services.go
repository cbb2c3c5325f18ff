package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/challenge"
	"github.com/dokzlo13/hubd/internal/config"
	"github.com/dokzlo13/hubd/internal/db"
	"github.com/dokzlo13/hubd/internal/dispatch"
	"github.com/dokzlo13/hubd/internal/event"
	"github.com/dokzlo13/hubd/internal/eventbus"
	"github.com/dokzlo13/hubd/internal/flags"
	"github.com/dokzlo13/hubd/internal/geo"
	"github.com/dokzlo13/hubd/internal/glass"
	"github.com/dokzlo13/hubd/internal/kv"
	"github.com/dokzlo13/hubd/internal/ledger"
	"github.com/dokzlo13/hubd/internal/occupancy"
	"github.com/dokzlo13/hubd/internal/policy"
	"github.com/dokzlo13/hubd/internal/scheduler"
	"github.com/dokzlo13/hubd/internal/security"
	"github.com/dokzlo13/hubd/internal/site"
	"github.com/dokzlo13/hubd/internal/storage"
	"github.com/dokzlo13/hubd/internal/transition"
	"github.com/dokzlo13/hubd/internal/wakelight"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Store  *storage.Store
	Bus    *eventbus.Bus
	Sites  *site.Provider
	Flags  *flags.Store
	Tz     *time.Location

	// Security
	Security   *security.Store
	Arm        *security.ArmScheduler
	Reconciler *security.Reconciler
	Authority  *challenge.Authority

	// Lighting
	Chain     *policy.Chain
	Occupancy *occupancy.Manager
	WakeLight *wakelight.Light

	// High-level services
	IO        *IOService
	Scheduler *SchedulerService
	Glass     *glass.Server

	wg sync.WaitGroup
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	tz, err := time.LoadLocation(cfg.Geo.Timezone)
	if err != nil {
		return nil, fmt.Errorf("geo.timezone: %w", err)
	}
	s.Tz = tz

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database

	s.Ledger = ledger.New(database.DB)
	s.Store = storage.NewStore(database.DB)
	s.Bus = eventbus.New(cfg.EventBus.GetQueueSize())

	s.Sites, err = site.NewFileProvider(cfg.Site.Path)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Flags, err = flags.New(kv.NewSQLiteBucket(database.DB, "flags"))
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Security, err = security.NewStore(s.Store, s.Ledger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Arm = security.NewArmScheduler(s.Security, s.Ledger, cfg.Glass.ArmDelay.Duration())
	s.Authority = challenge.NewAuthority()

	// Astronomical times are only available with coordinates
	var sun scheduler.SunSource
	if cfg.Geo.HasLocation() {
		sun = geo.NewCalculator(&geo.Location{
			Name:      cfg.Geo.Name,
			Latitude:  cfg.Geo.Lat,
			Longitude: cfg.Geo.Lon,
		}, cfg.Geo.Timezone)
	} else {
		log.Warn().Msg("No geo.lat/geo.lon configured, astronomical times (@sunrise, @sunset, etc.) are not available")
	}

	s.IO, err = NewIOService(cfg, s.Sites, s.Bus)
	if err != nil {
		s.Close()
		return nil, err
	}
	dispatcher := dispatch.New(s.IO.Sink)

	s.Reconciler = security.NewReconciler(s.Security, s.Sites, s.IO.Sink, security.LockOnArm, security.LightsOffOnArm)

	if cfg.WakeLight.Enabled {
		if sun == nil {
			s.Close()
			return nil, fmt.Errorf("wake_light requires geo.lat/geo.lon")
		}
		s.WakeLight = wakelight.New(wakelight.Config{
			Room:         cfg.WakeLight.Room,
			Buffer:       cfg.WakeLight.Buffer.Duration(),
			Span:         cfg.WakeLight.Span.Duration(),
			Grace:        cfg.WakeLight.Grace.Duration(),
			Step:         cfg.WakeLight.Step.Duration(),
			DismissDelay: cfg.WakeLight.DismissDelay.Duration(),
			Warm:         cfg.WakeLight.Warm,
			Daylight:     cfg.WakeLight.Daylight,
		}, s.Sites, dispatcher, s.Ledger, tz)
	}

	s.Chain, err = buildChain(cfg, s.Flags, s.Security, s.WakeLight, sun, tz)
	if err != nil {
		s.Close()
		return nil, err
	}
	log.Info().Strs("policies", s.Chain.Names()).Msg("Policy chain built")

	s.Occupancy = occupancy.NewManager(s.Sites, s.Chain, dispatcher, occupancy.SinkAlerter{Sink: s.IO.Sink}, occupancy.Options{
		DimBeforeOff: cfg.Occupancy.DimBeforeOff.Duration(),
		InboxSize:    cfg.Occupancy.InboxSize,
	})

	s.Scheduler, err = NewSchedulerService(cfg, s.Ledger, database, scheduler.NewEvaluator(sun, tz), s.Occupancy, s.WakeLight)
	if err != nil {
		s.Close()
		return nil, err
	}

	deps := glass.Deps{
		Bridges:   cfg.Glass.Bridges,
		Authority: s.Authority,
		Security:  s.Security,
		Arm:       s.Arm,
		Ledger:    s.Ledger,
		Flags:     s.Flags,
		Rooms:     s.Occupancy,
	}
	if s.WakeLight != nil {
		deps.Wake = s.WakeLight
	}
	s.Glass = glass.NewServer(cfg.HTTP.Host, cfg.HTTP.Port, deps)

	return s, nil
}

// buildChain assembles the policy chain. Earlier policies win.
func buildChain(
	cfg *config.Config,
	f *flags.Store,
	sec *security.Store,
	wake *wakelight.Light,
	sun scheduler.SunSource,
	tz *time.Location,
) (*policy.Chain, error) {
	b := policy.NewBuilder().Add(policy.NewDisable(f))
	if wake != nil {
		b.Add(wake.Policy())
	}
	b.Add(
		policy.NewAway(f, sec),
		policy.SleepMode(f),
		policy.MovieMode(f),
	)

	if cfg.Circadian.Enabled {
		circadian, err := policy.NewCircadian(policy.CircadianConfig{
			Day:        transition.Waypoint(cfg.Circadian.Day),
			Evening:    transition.Waypoint(cfg.Circadian.Evening),
			Night:      transition.Waypoint(cfg.Circadian.Night),
			NightStart: cfg.Circadian.NightStart,
			Transition: cfg.Circadian.Transition.Duration(),
		}, sun, tz)
		if err != nil {
			return nil, err
		}
		b.Add(circadian)
	}

	b.Add(
		policy.NewOnOff(),
		policy.NewIdleTimeout(cfg.Occupancy.IdleTimeout, cfg.Occupancy.DefaultIdle.Duration()),
	)
	return b.Build()
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a service that must stay up exits with an error.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	motion := s.Bus.Subscribe("occupancy", eventbus.OfKind(event.KindMotion))
	s.goRun(ctx, "occupancy", onFatalError, func(ctx context.Context) error {
		return s.Occupancy.Run(ctx, motion)
	})
	s.goRun(ctx, "security", onFatalError, s.Reconciler.Run)

	if s.WakeLight != nil {
		events := s.Bus.Subscribe("wake_light", eventbus.OfKind(event.KindSwitch))
		s.goRun(ctx, "wake_light", onFatalError, func(ctx context.Context) error {
			return s.WakeLight.Run(ctx, events)
		})
	}

	if err := s.IO.Start(ctx, s.goRun, onFatalError); err != nil {
		return err
	}

	s.Scheduler.Start(ctx, &s.wg)

	s.goRun(ctx, "glass", onFatalError, func(ctx context.Context) error {
		return s.Glass.Run(ctx, s.cfg.ShutdownTimeout.Duration())
	})

	return nil
}

// goRun runs fn in a tracked goroutine. A non-nil error is fatal.
func (s *Services) goRun(ctx context.Context, name string, onFatalError func(error), fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Str("service", name).Msg("Service failed")
			if onFatalError != nil {
				onFatalError(fmt.Errorf("%s: %w", name, err))
			}
		}
	}()
}

// Stop waits for background services to exit, bounded by the shutdown timeout,
// then releases resources. The caller cancels the context first.
func (s *Services) Stop() error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(s.cfg.ShutdownTimeout.Duration()):
		err = fmt.Errorf("services did not stop within %s", s.cfg.ShutdownTimeout.Duration())
	}

	if s.Arm != nil {
		s.Arm.Stop()
	}
	s.Close()
	return err
}

// Reload re-reads the site model. Running rooms pick it up on their next cycle.
func (s *Services) Reload() error {
	return s.Sites.Reload()
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Bus != nil {
		s.Bus.Close()
	}
	if s.IO != nil {
		s.IO.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
