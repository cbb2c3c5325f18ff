package wakelight

import (
	"context"

	"github.com/dokzlo13/hubd/internal/policy"
	"github.com/dokzlo13/hubd/internal/site"
)

// Policy keeps occupancy from overriding the ramp in the wake room.
type Policy struct {
	light *Light
}

// Policy returns the chain entry for this wake light.
func (l *Light) Policy() *Policy {
	return &Policy{light: l}
}

func (p *Policy) Name() string { return "wake_light" }

func (p *Policy) applies(room *site.Room) bool {
	return room.ID == p.light.cfg.Room && p.light.Running()
}

func (p *Policy) ActiveSettings(_ context.Context, room *site.Room) (policy.LightSettings, error) {
	if p.applies(room) {
		return policy.Ignore{}, nil
	}
	return policy.Unhandled{}, nil
}

func (p *Policy) IdleSettings(_ context.Context, room *site.Room) (policy.LightSettings, error) {
	if p.applies(room) {
		return policy.Ignore{}, nil
	}
	return policy.Unhandled{}, nil
}

func (p *Policy) StartIdleSettings(_ context.Context, room *site.Room) (policy.LightSettings, error) {
	if p.applies(room) {
		return policy.Ignore{}, nil
	}
	return policy.Unhandled{}, nil
}

func (p *Policy) IdleConditions(_ context.Context, room *site.Room) (policy.IdleConditions, error) {
	if p.applies(room) {
		return policy.IdleIgnored{}, nil
	}
	return policy.IdleUnhandled{}, nil
}
