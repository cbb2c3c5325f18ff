package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/geo"
	"github.com/dokzlo13/hubd/internal/scheduler"
	"github.com/dokzlo13/hubd/internal/site"
	"github.com/dokzlo13/hubd/internal/transition"
)

// CircadianConfig holds the waypoints and timing of the daily light curve.
type CircadianConfig struct {
	Day        transition.Waypoint
	Evening    transition.Waypoint
	Night      transition.Waypoint
	NightStart string        // time expression, e.g. "22:30"
	Transition time.Duration // length of each ramp
}

// Circadian follows the sun: night values before dawn, a ramp up to day
// values ending at sunrise, a ramp down to evening values ending at sunset,
// an evening plateau, then a ramp to night values ending at NightStart.
type Circadian struct {
	Base
	cfg        CircadianConfig
	nightStart *scheduler.TimeExpr
	sun        scheduler.SunSource
	tz         *time.Location
	now        func() time.Time
}

// NewCircadian creates the policy. A nil sun source always yields night values.
func NewCircadian(cfg CircadianConfig, sun scheduler.SunSource, tz *time.Location) (*Circadian, error) {
	expr, err := scheduler.ParseTimeExpr(cfg.NightStart)
	if err != nil {
		return nil, fmt.Errorf("circadian night_start: %w", err)
	}
	if expr.IsAstronomical() && sun == nil {
		return nil, fmt.Errorf("circadian night_start %q requires geo.lat/geo.lon", cfg.NightStart)
	}
	if tz == nil {
		tz = time.UTC
	}
	return &Circadian{
		cfg:        cfg,
		nightStart: expr,
		sun:        sun,
		tz:         tz,
		now:        time.Now,
	}, nil
}

func (p *Circadian) Name() string { return "circadian" }

func (p *Circadian) ActiveSettings(ctx context.Context, _ *site.Room) (LightSettings, error) {
	w := p.At(ctx, p.now())
	return Temperature{Kelvin: w.Kelvin, Brightness: w.Brightness}, nil
}

// StartIdleSettings dims to half the current curve before the lights go off.
func (p *Circadian) StartIdleSettings(ctx context.Context, _ *site.Room) (LightSettings, error) {
	w := p.At(ctx, p.now())
	return Temperature{Kelvin: w.Kelvin, Brightness: max(1, w.Brightness/2)}, nil
}

// At returns the curve value at t. Missing sun data falls back to night values.
func (p *Circadian) At(ctx context.Context, t time.Time) transition.Waypoint {
	if p.sun == nil {
		return p.cfg.Night
	}
	local := t.In(p.tz)
	astro, err := p.sun.SunTimes(ctx, local)
	if err != nil {
		log.Debug().Err(err).Msg("No sun times, using night values")
		return p.cfg.Night
	}
	night, ok := p.nightAfter(local, astro)
	if !ok {
		return p.cfg.Night
	}
	period := p.cfg.Transition
	sunrise, sunset := astro.Sunrise, astro.Sunset

	// Before sunrise the previous evening may still be running
	if local.Before(sunrise) {
		yesterday := local.AddDate(0, 0, -1)
		if prev, err := p.sun.SunTimes(ctx, yesterday); err == nil {
			if prevNight, ok := p.nightAfter(yesterday, prev); ok && local.Before(prevNight) {
				return p.evening(local, prev.Sunset, prevNight)
			}
		}
	}

	switch {
	case local.Before(sunrise.Add(-period)):
		return p.cfg.Night
	case local.Before(sunrise):
		return ramp(p.cfg.Night, p.cfg.Day, local, sunrise.Add(-period), sunrise)
	case local.Before(sunset.Add(-period)):
		return p.cfg.Day
	case local.Before(sunset):
		return ramp(p.cfg.Day, p.cfg.Evening, local, sunset.Add(-period), sunset)
	case local.Before(night):
		return p.evening(local, sunset, night)
	default:
		return p.cfg.Night
	}
}

// nightAfter returns the night start that ends the evening of day. A night
// start that falls before that day's sunset belongs to the next morning.
func (p *Circadian) nightAfter(day time.Time, astro *geo.AstroTimes) (time.Time, bool) {
	night, ok := p.nightStart.Evaluate(day, astro, p.tz)
	if !ok {
		return time.Time{}, false
	}
	if night.Before(astro.Sunset) {
		night = night.AddDate(0, 0, 1)
	}
	return night, true
}

// evening covers sunset to night: the plateau, then the ramp to night values.
func (p *Circadian) evening(t, sunset, night time.Time) transition.Waypoint {
	nightRamp := night.Add(-p.cfg.Transition)
	if nightRamp.Before(sunset) {
		nightRamp = sunset
	}
	if t.Before(nightRamp) {
		return p.cfg.Evening
	}
	return ramp(p.cfg.Evening, p.cfg.Night, t, nightRamp, night)
}

func ramp(from, to transition.Waypoint, t, start, end time.Time) transition.Waypoint {
	pos := transition.Position(float64(t.Sub(start)), float64(end.Sub(start)))
	return transition.Between(from, to, pos)
}
