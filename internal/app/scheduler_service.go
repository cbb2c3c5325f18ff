package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/config"
	"github.com/dokzlo13/hubd/internal/db"
	"github.com/dokzlo13/hubd/internal/kv"
	"github.com/dokzlo13/hubd/internal/ledger"
	"github.com/dokzlo13/hubd/internal/occupancy"
	"github.com/dokzlo13/hubd/internal/scheduler"
	"github.com/dokzlo13/hubd/internal/wakelight"
)

// RefreshScheduleID re-resolves lit rooms so circadian values follow the clock.
const RefreshScheduleID = "circadian_refresh"

// SchedulerService wraps the scheduler and related periodic tasks.
type SchedulerService struct {
	cfg       *config.Config
	Scheduler *scheduler.Scheduler
	ledger    *ledger.Ledger
	db        *db.DB
}

// NewSchedulerService creates the scheduler and registers the hub's schedules.
func NewSchedulerService(
	cfg *config.Config,
	l *ledger.Ledger,
	database *db.DB,
	evaluator *scheduler.Evaluator,
	rooms *occupancy.Manager,
	wake *wakelight.Light,
) (*SchedulerService, error) {
	sched := scheduler.New(l, evaluator)

	if cfg.Circadian.Enabled {
		sched.Periodic(RefreshScheduleID, cfg.Occupancy.Refresh.Duration(), func(context.Context, *scheduler.Occurrence) {
			rooms.Refresh()
		}, "occupancy")
	}

	if wake != nil {
		if err := wake.Register(sched); err != nil {
			return nil, err
		}
		log.Info().Str("room", cfg.WakeLight.Room).Str("at", wake.Expr()).Msg("Wake light scheduled")
	}

	return &SchedulerService{
		cfg:       cfg,
		Scheduler: sched,
		ledger:    l,
		db:        database,
	}, nil
}

// Start begins the scheduler and related periodic tasks.
func (s *SchedulerService) Start(ctx context.Context, wg *sync.WaitGroup) {
	// Run boot recovery first
	s.Scheduler.RunBootRecovery(ctx)

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := s.Scheduler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Scheduler error")
		}
	}()
	go func() {
		defer wg.Done()
		s.runCleanup(ctx)
	}()
}

// runCleanup periodically deletes old ledger entries and expired flags.
func (s *SchedulerService) runCleanup(ctx context.Context) {
	retention := s.cfg.Ledger.Retention()
	interval := s.cfg.Ledger.CleanupInterval.Duration()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := s.ledger.DeleteOlderThan(retention)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old ledger entries")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Dur("retention", retention).Msg("Cleaned up old ledger entries")
			}

			expired, err := kv.CleanupExpired(s.db.DB)
			if err != nil {
				log.Error().Err(err).Msg("Failed to cleanup expired keys")
			} else if expired > 0 {
				log.Debug().Int64("deleted", expired).Msg("Cleaned up expired keys")
			}
		}
	}
}
