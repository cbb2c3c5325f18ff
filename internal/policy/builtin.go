package policy

import (
	"context"
	"time"

	"github.com/dokzlo13/hubd/internal/flags"
	"github.com/dokzlo13/hubd/internal/site"
)

// FlagReader reads boolean flags.
type FlagReader interface {
	Bool(ctx context.Context, key string) (bool, error)
}

// ArmedReader reports whether security is armed.
type ArmedReader interface {
	Armed(ctx context.Context) (bool, error)
}

// Disable vetoes every lighting change while the "Disable Lights" flag is set.
type Disable struct {
	Base
	flags FlagReader
}

func NewDisable(f FlagReader) *Disable { return &Disable{flags: f} }

func (p *Disable) Name() string { return "disable" }

func (p *Disable) ActiveSettings(ctx context.Context, _ *site.Room) (LightSettings, error) {
	return p.veto(ctx)
}

func (p *Disable) IdleSettings(ctx context.Context, _ *site.Room) (LightSettings, error) {
	return p.veto(ctx)
}

func (p *Disable) StartIdleSettings(ctx context.Context, _ *site.Room) (LightSettings, error) {
	return p.veto(ctx)
}

func (p *Disable) veto(ctx context.Context) (LightSettings, error) {
	on, err := p.flags.Bool(ctx, flags.DisableLights)
	if err != nil {
		return nil, err
	}
	if on {
		return Ignore{}, nil
	}
	return Unhandled{}, nil
}

// Away keeps lights from turning on while nobody is home: security armed or
// the "Away Mode" flag set. Turning lights off still goes through.
type Away struct {
	Base
	flags    FlagReader
	security ArmedReader
}

func NewAway(f FlagReader, security ArmedReader) *Away {
	return &Away{flags: f, security: security}
}

func (p *Away) Name() string { return "away" }

func (p *Away) ActiveSettings(ctx context.Context, _ *site.Room) (LightSettings, error) {
	away, err := p.away(ctx)
	if err != nil {
		return nil, err
	}
	if away {
		return Ignore{}, nil
	}
	return Unhandled{}, nil
}

func (p *Away) away(ctx context.Context) (bool, error) {
	if p.security != nil {
		armed, err := p.security.Armed(ctx)
		if err != nil {
			return false, err
		}
		if armed {
			return true, nil
		}
	}
	return p.flags.Bool(ctx, flags.AwayMode)
}

// ModeRule is what a mode does for one room type. Nil fields are Unhandled.
type ModeRule struct {
	Active     LightSettings
	Idle       LightSettings
	StartIdle  LightSettings
	Conditions IdleConditions
}

// Mode applies per-room-type rules while a flag is set.
type Mode struct {
	name  string
	flag  string
	flags FlagReader
	rules map[site.RoomType]ModeRule
}

// NewMode creates a flag-scoped mode policy.
func NewMode(name, flag string, f FlagReader, rules map[site.RoomType]ModeRule) *Mode {
	return &Mode{name: name, flag: flag, flags: f, rules: rules}
}

// SleepMode leaves bedrooms alone and keeps night paths dim.
func SleepMode(f FlagReader) *Mode {
	dim := Temperature{Kelvin: 2200, Brightness: 10}
	return NewMode("sleep", flags.SleepMode, f, map[site.RoomType]ModeRule{
		site.RoomBedroom:  {Active: Ignore{}, StartIdle: Ignore{}},
		site.RoomHallway:  {Active: dim, StartIdle: Ignore{}},
		site.RoomBathroom: {Active: dim, StartIdle: Ignore{}},
	})
}

// MovieMode freezes the living room: no changes and no idle timeout.
func MovieMode(f FlagReader) *Mode {
	return NewMode("movie", flags.MovieMode, f, map[site.RoomType]ModeRule{
		site.RoomLiving: {Active: Ignore{}, Idle: Ignore{}, StartIdle: Ignore{}, Conditions: IdleIgnored{}},
	})
}

func (p *Mode) Name() string { return p.name }

func (p *Mode) rule(ctx context.Context, room *site.Room) (ModeRule, bool, error) {
	r, ok := p.rules[room.Type]
	if !ok {
		return ModeRule{}, false, nil
	}
	on, err := p.flags.Bool(ctx, p.flag)
	if err != nil || !on {
		return ModeRule{}, false, err
	}
	return r, true, nil
}

func (p *Mode) settings(ctx context.Context, room *site.Room, pick func(ModeRule) LightSettings) (LightSettings, error) {
	r, ok, err := p.rule(ctx, room)
	if err != nil {
		return nil, err
	}
	if !ok || pick(r) == nil {
		return Unhandled{}, nil
	}
	return pick(r), nil
}

func (p *Mode) ActiveSettings(ctx context.Context, room *site.Room) (LightSettings, error) {
	return p.settings(ctx, room, func(r ModeRule) LightSettings { return r.Active })
}

func (p *Mode) IdleSettings(ctx context.Context, room *site.Room) (LightSettings, error) {
	return p.settings(ctx, room, func(r ModeRule) LightSettings { return r.Idle })
}

func (p *Mode) StartIdleSettings(ctx context.Context, room *site.Room) (LightSettings, error) {
	return p.settings(ctx, room, func(r ModeRule) LightSettings { return r.StartIdle })
}

func (p *Mode) IdleConditions(ctx context.Context, room *site.Room) (IdleConditions, error) {
	r, ok, err := p.rule(ctx, room)
	if err != nil {
		return nil, err
	}
	if !ok || r.Conditions == nil {
		return IdleUnhandled{}, nil
	}
	return r.Conditions, nil
}

// OnOff is the catch-all: lights on when active, off when idle.
// It always resolves the on/off queries so the chain never bottoms out.
type OnOff struct {
	Base
}

func NewOnOff() *OnOff { return &OnOff{} }

func (p *OnOff) Name() string { return "on_off" }

func (p *OnOff) ActiveSettings(context.Context, *site.Room) (LightSettings, error) {
	return Switch{On: true}, nil
}

func (p *OnOff) IdleSettings(context.Context, *site.Room) (LightSettings, error) {
	return Switch{On: false}, nil
}

func (p *OnOff) StartIdleSettings(context.Context, *site.Room) (LightSettings, error) {
	return Ignore{}, nil
}

// IdleTimeoutLookup returns the configured idle timeout for a room type.
type IdleTimeoutLookup func(roomType string) (time.Duration, bool)

// IdleTimeout resolves idle conditions from a fixed per-room-type table.
// A zero entry means the room never idles; unknown types use the default.
type IdleTimeout struct {
	Base
	lookup   IdleTimeoutLookup
	fallback time.Duration
}

func NewIdleTimeout(lookup IdleTimeoutLookup, fallback time.Duration) *IdleTimeout {
	return &IdleTimeout{lookup: lookup, fallback: fallback}
}

func (p *IdleTimeout) Name() string { return "idle_timeout" }

func (p *IdleTimeout) IdleConditions(_ context.Context, room *site.Room) (IdleConditions, error) {
	if p.lookup != nil {
		if d, ok := p.lookup(string(room.Type)); ok {
			if d <= 0 {
				return IdleIgnored{}, nil
			}
			return Timed{Duration: d}, nil
		}
	}
	return Timed{Duration: p.fallback}, nil
}
