package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/ledger"
)

// Scheduler manages schedules and runs their handlers when occurrences fire.
// Fired occurrence ids are recorded in the ledger so a restart or a
// duplicate wake-up never runs the same occurrence twice.
type Scheduler struct {
	mu        sync.RWMutex
	schedules map[string]Schedule

	ledger    *ledger.Ledger
	evaluator *Evaluator
	now       func() time.Time

	wg         sync.WaitGroup
	reschedule chan struct{}
}

// New creates a scheduler. A nil ledger disables occurrence dedupe.
func New(l *ledger.Ledger, evaluator *Evaluator) *Scheduler {
	return &Scheduler{
		schedules:  make(map[string]Schedule),
		ledger:     l,
		evaluator:  evaluator,
		now:        time.Now,
		reschedule: make(chan struct{}, 1),
	}
}

// Register adds a schedule
func (s *Scheduler) Register(sched Schedule) {
	s.mu.Lock()
	s.schedules[sched.ID()] = sched
	s.mu.Unlock()

	log.Debug().
		Str("id", sched.ID()).
		Str("tag", sched.Tag()).
		Msg("Schedule registered")

	s.notifyReschedule()
}

// Unregister removes a schedule
func (s *Scheduler) Unregister(id string) {
	s.mu.Lock()
	delete(s.schedules, id)
	s.mu.Unlock()
	s.notifyReschedule()
}

// Daily creates and registers a daily schedule
func (s *Scheduler) Daily(id, timeExpr string, handler Handler, tag string, misfirePolicy MisfirePolicy) error {
	sched, err := NewDailySchedule(id, timeExpr, handler, tag, misfirePolicy, s.evaluator)
	if err != nil {
		return err
	}
	s.Register(sched)
	return nil
}

// Periodic creates and registers a periodic schedule starting now
func (s *Scheduler) Periodic(id string, interval time.Duration, handler Handler, tag string) {
	s.Register(NewPeriodicSchedule(id, interval, s.now(), handler, tag))
}

// notifyReschedule signals the scheduler to recalculate
func (s *Scheduler) notifyReschedule() {
	select {
	case s.reschedule <- struct{}{}:
	default:
	}
}

// Run starts the scheduler loop. Handlers still running when ctx is
// cancelled are waited for before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	log.Info().Msg("Scheduler started")
	defer s.wg.Wait()

	for {
		occ, sched := s.nextOccurrence(s.now())

		sleepDuration := time.Hour // default if no schedules
		if occ != nil {
			sleepDuration = occ.Time.Sub(s.now())
			if sleepDuration < 0 {
				sleepDuration = 0
			}
		}

		log.Debug().
			Dur("sleep_duration", sleepDuration).
			Msg("Scheduler sleeping")

		timer := time.NewTimer(sleepDuration)

		select {
		case <-ctx.Done():
			timer.Stop()
			log.Info().Msg("Scheduler stopping")
			return nil

		case <-s.reschedule:
			timer.Stop()
			log.Debug().Msg("Schedule changed, recomputing")
			continue

		case <-timer.C:
			if occ != nil && sched != nil {
				s.fire(ctx, sched, occ, "scheduler")
			}
		}
	}
}

// RunBootRecovery runs the most recent previous occurrence for schedules,
// grouped by tag. For schedules with the same tag, only the one with the
// most recent previous occurrence is executed (later schedules supersede earlier ones).
func (s *Scheduler) RunBootRecovery(ctx context.Context) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()

	type candidate struct {
		sched Schedule
		prev  *Occurrence
	}
	winners := make(map[string]candidate)

	for _, sched := range s.schedules {
		if sched.MisfirePolicy() == MisfirePolicySkip {
			continue
		}

		prev := sched.Prev(now)
		if prev == nil {
			continue
		}

		groupKey := sched.Tag()
		if groupKey == "" {
			groupKey = "__untagged:" + sched.ID()
		}

		existing, exists := winners[groupKey]
		if !exists || prev.Time.After(existing.prev.Time) {
			winners[groupKey] = candidate{sched: sched, prev: prev}
		}
	}

	for groupKey, winner := range winners {
		log.Info().
			Str("schedule", winner.sched.ID()).
			Str("group", groupKey).
			Time("prev_time", winner.prev.Time).
			Msg("Boot recovery: running most recent occurrence for group")

		// The original occurrence id keeps recovery idempotent across restarts
		s.fire(ctx, winner.sched, winner.prev, "boot_recovery")
	}
}

// nextOccurrence finds the earliest next occurrence across all schedules
func (s *Scheduler) nextOccurrence(after time.Time) (*Occurrence, Schedule) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var earliest *Occurrence
	var source Schedule

	for _, sched := range s.schedules {
		if occ := sched.Next(after); occ != nil {
			if earliest == nil || occ.Time.Before(earliest.Time) {
				earliest = occ
				source = sched
			}
		}
	}

	return earliest, source
}

// fire claims the occurrence in the ledger and runs the handler in its own goroutine.
func (s *Scheduler) fire(ctx context.Context, sched Schedule, occ *Occurrence, source string) {
	if s.ledger != nil {
		first, err := s.ledger.MarkOnce(ledger.EventScheduleFired, occ.ID, source, map[string]any{
			"schedule_id": sched.ID(),
			"run_at":      occ.Time.Unix(),
		})
		if err != nil {
			log.Error().Err(err).Str("occurrence", occ.ID).Msg("Failed to record occurrence")
			return
		}
		if !first {
			log.Debug().Str("occurrence", occ.ID).Msg("Already fired, skipping")
			return
		}
	}

	log.Info().
		Str("schedule_id", sched.ID()).
		Str("occurrence_id", occ.ID).
		Time("time", occ.Time).
		Str("source", source).
		Msg("Running schedule")

	handler := sched.Handler()
	if handler == nil {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("schedule_id", sched.ID()).
					Msg("Schedule handler panicked")
			}
		}()
		handler(ctx, occ)
	}()
}

// ScheduleEntry represents a single occurrence for display
type ScheduleEntry struct {
	ID     string
	Expr   string
	Time   time.Time
	Tag    string
	IsPast bool
}

// ForDay returns every occurrence of every schedule on the given day, sorted by time.
func (s *Scheduler) ForDay(day time.Time) []ScheduleEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tz := s.evaluator.Timezone()
	now := s.now().In(tz)
	dayInTz := day.In(tz)
	startOfDay := time.Date(dayInTz.Year(), dayInTz.Month(), dayInTz.Day(), 0, 0, 0, 0, tz)
	endOfDay := startOfDay.AddDate(0, 0, 1)

	var entries []ScheduleEntry
	for _, sched := range s.schedules {
		cursor := startOfDay.Add(-time.Second)
		for {
			occ := sched.Next(cursor)
			if occ == nil || !occ.Time.Before(endOfDay) {
				break
			}
			entries = append(entries, ScheduleEntry{
				ID:     sched.ID(),
				Expr:   describe(sched),
				Time:   occ.Time,
				Tag:    sched.Tag(),
				IsPast: occ.Time.Before(now),
			})
			cursor = occ.Time
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Time.Before(entries[j].Time) })
	return entries
}

// FormatScheduleForDay returns a human-readable schedule for a specific day.
func (s *Scheduler) FormatScheduleForDay(day time.Time) string {
	entries := s.ForDay(day)
	tz := s.evaluator.Timezone()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Schedule for %s (timezone: %s)\n", day.In(tz).Format("2006-01-02"), tz.String()))
	sb.WriteString(fmt.Sprintf("%-3s %-20s %-20s %-12s %s\n", "", "ID", "EXPR", "TIME", "TAG"))
	sb.WriteString(strings.Repeat("-", 70) + "\n")

	for _, entry := range entries {
		status := " "
		if entry.IsPast {
			status = "✓"
		}
		tag := entry.Tag
		if tag == "" {
			tag = "-"
		}
		sb.WriteString(fmt.Sprintf("%-3s %-20s %-20s %-12s %s\n",
			status, entry.ID, entry.Expr, entry.Time.In(tz).Format("15:04:05"), tag))
	}

	if len(entries) == 0 {
		sb.WriteString("No occurrences for this day\n")
	}

	return sb.String()
}

func describe(sched Schedule) string {
	switch v := sched.(type) {
	case *DailySchedule:
		return v.timeExpr.String()
	case *PeriodicSchedule:
		return fmt.Sprintf("every %s", v.Interval())
	default:
		return "unknown"
	}
}

// Evaluator returns the time expression evaluator
func (s *Scheduler) Evaluator() *Evaluator {
	return s.evaluator
}
