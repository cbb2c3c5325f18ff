// Package policy resolves lighting intents for a room through an ordered
// chain of policies. Each policy may resolve a query, veto it with Ignore,
// or defer to the next policy with Unhandled.
package policy

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/site"
)

// Query names one of the four questions a policy answers.
type Query string

const (
	QueryActive     Query = "active_settings"
	QueryIdle       Query = "idle_settings"
	QueryStartIdle  Query = "start_idle_settings"
	QueryConditions Query = "idle_conditions"
)

// Policy is a single rule in the chain.
type Policy interface {
	Name() string
	ActiveSettings(ctx context.Context, room *site.Room) (LightSettings, error)
	IdleSettings(ctx context.Context, room *site.Room) (LightSettings, error)
	StartIdleSettings(ctx context.Context, room *site.Room) (LightSettings, error)
	IdleConditions(ctx context.Context, room *site.Room) (IdleConditions, error)
}

// Base answers Unhandled to every query. Embed it and override what the policy cares about.
type Base struct{}

func (Base) ActiveSettings(context.Context, *site.Room) (LightSettings, error) {
	return Unhandled{}, nil
}

func (Base) IdleSettings(context.Context, *site.Room) (LightSettings, error) {
	return Unhandled{}, nil
}

func (Base) StartIdleSettings(context.Context, *site.Room) (LightSettings, error) {
	return Unhandled{}, nil
}

func (Base) IdleConditions(context.Context, *site.Room) (IdleConditions, error) {
	return IdleUnhandled{}, nil
}

// ConfigurationError is returned when no policy in the chain resolved a query.
type ConfigurationError struct {
	Query Query
	Room  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no policy resolved %s for room %q", e.Query, e.Room)
}

// IsConfigurationError reports whether err is (or wraps) a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Chain is an ordered, immutable list of policies, highest priority first.
type Chain struct {
	policies []Policy
}

// Builder assembles a Chain once at startup.
type Builder struct {
	policies []Policy
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends policies in priority order. Nil policies are skipped so optional
// policies can be passed unconditionally.
func (b *Builder) Add(policies ...Policy) *Builder {
	for _, p := range policies {
		if p != nil {
			b.policies = append(b.policies, p)
		}
	}
	return b
}

// Build returns the chain.
func (b *Builder) Build() (*Chain, error) {
	if len(b.policies) == 0 {
		return nil, errors.New("policy chain is empty")
	}
	policies := make([]Policy, len(b.policies))
	copy(policies, b.policies)
	return &Chain{policies: policies}, nil
}

// Names lists policy names in priority order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.policies))
	for i, p := range c.policies {
		names[i] = p.Name()
	}
	return names
}

// ActiveSettings resolves the settings for a room that just saw motion.
func (c *Chain) ActiveSettings(ctx context.Context, room *site.Room) (LightSettings, error) {
	return resolve(ctx, c, QueryActive, room, Policy.ActiveSettings, settingsUnhandled)
}

// IdleSettings resolves the settings for a room whose idle timer elapsed.
func (c *Chain) IdleSettings(ctx context.Context, room *site.Room) (LightSettings, error) {
	return resolve(ctx, c, QueryIdle, room, Policy.IdleSettings, settingsUnhandled)
}

// StartIdleSettings resolves the transitional dim-before-off settings.
func (c *Chain) StartIdleSettings(ctx context.Context, room *site.Room) (LightSettings, error) {
	return resolve(ctx, c, QueryStartIdle, room, Policy.StartIdleSettings, settingsUnhandled)
}

// IdleConditions resolves how the room goes idle.
func (c *Chain) IdleConditions(ctx context.Context, room *site.Room) (IdleConditions, error) {
	return resolve(ctx, c, QueryConditions, room, Policy.IdleConditions, conditionsUnhandled)
}

// resolve returns the first result that is not unhandled. Policy errors abort
// the resolution; the caller retries on the next event.
func resolve[T any](
	ctx context.Context,
	c *Chain,
	q Query,
	room *site.Room,
	ask func(Policy, context.Context, *site.Room) (T, error),
	unhandled func(T) bool,
) (T, error) {
	var zero T
	for _, p := range c.policies {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		result, err := ask(p, ctx, room)
		if err != nil {
			return zero, fmt.Errorf("policy %s: %s: %w", p.Name(), q, err)
		}
		if unhandled(result) {
			continue
		}
		log.Debug().
			Str("room", room.ID).
			Str("query", string(q)).
			Str("policy", p.Name()).
			Str("result", fmt.Sprint(result)).
			Msg("Query resolved")
		return result, nil
	}
	return zero, &ConfigurationError{Query: q, Room: room.ID}
}
