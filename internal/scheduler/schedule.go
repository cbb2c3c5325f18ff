// Package scheduler runs time-of-day and interval schedules.
// Different schedule types (daily, periodic) implement the Schedule interface
// and hand each occurrence to a Handler.
package scheduler

import (
	"context"
	"fmt"
	"time"
)

// Handler runs when an occurrence fires.
type Handler func(ctx context.Context, occ *Occurrence)

// Schedule is the core abstraction for any source of timed work.
type Schedule interface {
	// ID returns the unique identifier for this schedule
	ID() string

	// Tag returns the optional tag for grouping schedules
	Tag() string

	// Next returns the next occurrence after the given time, or nil if none
	Next(after time.Time) *Occurrence

	// Prev returns the previous occurrence before the given time, or nil if none
	Prev(before time.Time) *Occurrence

	// Handler returns the function invoked for each occurrence
	Handler() Handler

	// MisfirePolicy returns how to handle missed occurrences on boot
	MisfirePolicy() MisfirePolicy
}

// MisfirePolicy says what boot recovery does with an occurrence that passed
// while the hub was down.
type MisfirePolicy string

const (
	// MisfirePolicySkip drops missed occurrences.
	MisfirePolicySkip MisfirePolicy = "skip"
	// MisfirePolicyRunLatest replays the latest missed occurrence of the tag group.
	MisfirePolicyRunLatest MisfirePolicy = "run_latest"
)

// Occurrence represents a specific firing point of a schedule
type Occurrence struct {
	// ID uniquely identifies this occurrence (e.g., "wake/1704067200")
	ID string

	// ScheduleID is the ID of the schedule that created this occurrence
	ScheduleID string

	// Time is when this occurrence should fire
	Time time.Time
}

// NewOccurrence creates a new occurrence with a standard ID format
func NewOccurrence(scheduleID string, t time.Time) *Occurrence {
	return &Occurrence{
		ID:         fmt.Sprintf("%s/%d", scheduleID, t.Unix()),
		ScheduleID: scheduleID,
		Time:       t,
	}
}

// NewOccurrenceWithSuffix creates an occurrence with a custom suffix (e.g., for boot recovery)
func NewOccurrenceWithSuffix(scheduleID string, t time.Time, suffix string) *Occurrence {
	return &Occurrence{
		ID:         fmt.Sprintf("%s/%s/%d", scheduleID, suffix, t.Unix()),
		ScheduleID: scheduleID,
		Time:       t,
	}
}

// DailySchedule fires once a day at a time expression.
// Supports fixed times (e.g., "06:45") and astronomical times (e.g., "@sunrise - 30m").
type DailySchedule struct {
	id            string
	tag           string
	timeExpr      *TimeExpr
	evaluator     *Evaluator
	handler       Handler
	misfirePolicy MisfirePolicy
}

// NewDailySchedule creates a new daily schedule from a time expression.
// Returns an error if the expression uses astronomical times but the evaluator has no sun source.
func NewDailySchedule(
	id string,
	timeExprStr string,
	handler Handler,
	tag string,
	misfirePolicy MisfirePolicy,
	evaluator *Evaluator,
) (*DailySchedule, error) {
	expr, err := ParseTimeExpr(timeExprStr)
	if err != nil {
		return nil, fmt.Errorf("invalid time expression: %w", err)
	}

	if expr.IsAstronomical() && !evaluator.SupportsAstronomical() {
		return nil, fmt.Errorf("astronomical time expression %q requires geo.lat/geo.lon", timeExprStr)
	}

	return &DailySchedule{
		id:            id,
		tag:           tag,
		timeExpr:      expr,
		evaluator:     evaluator,
		handler:       handler,
		misfirePolicy: misfirePolicy,
	}, nil
}

func (s *DailySchedule) ID() string                   { return s.id }
func (s *DailySchedule) Tag() string                  { return s.tag }
func (s *DailySchedule) Handler() Handler             { return s.handler }
func (s *DailySchedule) MisfirePolicy() MisfirePolicy { return s.misfirePolicy }

// Next returns the next occurrence after the given time.
func (s *DailySchedule) Next(after time.Time) *Occurrence {
	t, ok := s.evaluator.Next(s.timeExpr, after)
	if !ok {
		return nil
	}
	return NewOccurrence(s.id, t)
}

// Prev returns the previous occurrence before the given time.
func (s *DailySchedule) Prev(before time.Time) *Occurrence {
	t, ok := s.evaluator.Prev(s.timeExpr, before)
	if !ok {
		return nil
	}
	return NewOccurrence(s.id, t)
}

// PeriodicSchedule fires at regular intervals from its start time.
type PeriodicSchedule struct {
	id        string
	tag       string
	interval  time.Duration
	startTime time.Time
	handler   Handler
}

// NewPeriodicSchedule creates a new periodic schedule starting at start.
func NewPeriodicSchedule(id string, interval time.Duration, start time.Time, handler Handler, tag string) *PeriodicSchedule {
	return &PeriodicSchedule{
		id:        id,
		tag:       tag,
		interval:  interval,
		startTime: start,
		handler:   handler,
	}
}

func (s *PeriodicSchedule) ID() string       { return s.id }
func (s *PeriodicSchedule) Tag() string      { return s.tag }
func (s *PeriodicSchedule) Handler() Handler { return s.handler }

// MisfirePolicy is always skip: periodics don't replay missed ticks.
func (s *PeriodicSchedule) MisfirePolicy() MisfirePolicy { return MisfirePolicySkip }

// Next returns the next occurrence after the given time.
func (s *PeriodicSchedule) Next(after time.Time) *Occurrence {
	if after.Before(s.startTime) {
		return NewOccurrence(s.id, s.startTime)
	}

	elapsed := after.Sub(s.startTime)
	ticks := int64(elapsed / s.interval)
	nextTime := s.startTime.Add(time.Duration(ticks+1) * s.interval)

	return NewOccurrence(s.id, nextTime)
}

// Prev returns the previous occurrence before the given time.
func (s *PeriodicSchedule) Prev(before time.Time) *Occurrence {
	if !before.After(s.startTime) {
		return nil
	}

	elapsed := before.Sub(s.startTime)
	ticks := int64(elapsed / s.interval)
	prevTime := s.startTime.Add(time.Duration(ticks) * s.interval)

	// Exactly on a tick: step back one
	if prevTime.Equal(before) && ticks > 0 {
		prevTime = prevTime.Add(-s.interval)
	}

	return NewOccurrence(s.id, prevTime)
}

// Interval returns the schedule interval.
func (s *PeriodicSchedule) Interval() time.Duration {
	return s.interval
}
