package security

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/site"
)

// Rule produces the commands for a newly observed state.
type Rule struct {
	Name string
	Plan func(state State, s *site.Site) []action.Action
}

// LockOnArm locks every lock when the house arms.
var LockOnArm = Rule{
	Name: "lock_on_arm",
	Plan: func(state State, s *site.Site) []action.Action {
		if state != Armed {
			return nil
		}
		var out []action.Action
		for _, d := range s.Devices() {
			if d.Accepts(action.KindLock) {
				out = append(out, action.Lock{Header: action.Header{Device: d.ID}, Locked: true})
			}
		}
		return out
	},
}

// LightsOffOnArm switches off every light fixture when the house arms.
var LightsOffOnArm = Rule{
	Name: "lights_off_on_arm",
	Plan: func(state State, s *site.Site) []action.Action {
		if state != Armed {
			return nil
		}
		var out []action.Action
		for _, d := range s.Devices() {
			if d.Fixture && d.Accepts(action.KindSwitch) {
				out = append(out, action.Switch{Header: action.Header{Device: d.ID}, On: false})
			}
		}
		return out
	},
}

// Reconciler evaluates rules against the latest security state combined with
// the latest site snapshot. Rules run once per distinct state; a new site
// snapshot alone does not re-run them.
type Reconciler struct {
	store *Store
	sites *site.Provider
	sink  action.Sink
	rules []Rule
}

// NewReconciler creates a reconciler with the given rules.
func NewReconciler(store *Store, sites *site.Provider, sink action.Sink, rules ...Rule) *Reconciler {
	return &Reconciler{store: store, sites: sites, sink: sink, rules: rules}
}

// Run evaluates rules until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	states := r.store.Watch(ctx)
	snapshots := r.sites.Watch(ctx)

	var (
		current   *site.Site
		last      State
		pending   State
		evaluated bool
	)

	log.Info().Int("rules", len(r.rules)).Msg("Security reconciler started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case st, ok := <-states:
			if !ok {
				return nil
			}
			if evaluated && st == last {
				continue
			}
			pending = st

		case s, ok := <-snapshots:
			if !ok {
				return nil
			}
			current = s
		}

		if pending == "" || current == nil {
			continue
		}
		r.Evaluate(ctx, pending, current)
		last, pending, evaluated = pending, "", true
	}
}

// Evaluate runs every rule for state and publishes the commands independently.
// Returns the number of commands the sink accepted.
func (r *Reconciler) Evaluate(ctx context.Context, state State, s *site.Site) int {
	sent := 0
	for _, rule := range r.rules {
		commands := rule.Plan(state, s)
		for _, a := range commands {
			if err := r.sink.Publish(ctx, a); err != nil {
				log.Warn().Err(err).Str("rule", rule.Name).Str("device", a.Target()).Msg("Security command failed")
				continue
			}
			sent++
		}
		if len(commands) > 0 {
			log.Info().Str("rule", rule.Name).Str("state", string(state)).Int("commands", len(commands)).Msg("Security rule applied")
		}
	}
	return sent
}
