// Package sink routes device commands to the bridge that serves each device.
package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/site"
)

// Router picks a sink by the target device's bridge. Alerts, unknown
// devices and devices without a bridge go to the fallback.
type Router struct {
	sites    *site.Provider
	fallback action.Sink

	mu      sync.RWMutex
	bridges map[string]action.Sink
}

// NewRouter creates a router. fallback may be nil, in which case
// unroutable commands are logged and dropped.
func NewRouter(sites *site.Provider, fallback action.Sink) *Router {
	return &Router{
		sites:    sites,
		fallback: fallback,
		bridges:  make(map[string]action.Sink),
	}
}

// Handle registers the sink for a bridge name.
func (r *Router) Handle(bridge string, s action.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bridges[bridge] = s
}

// Publish implements action.Sink.
func (r *Router) Publish(ctx context.Context, a action.Action) error {
	s := r.route(a)
	if s == nil {
		log.Warn().Str("device", a.Target()).Str("kind", string(a.Kind())).Msg("No sink for command, dropping")
		return fmt.Errorf("no sink for %s command to %s", a.Kind(), a.Target())
	}
	return s.Publish(ctx, a)
}

func (r *Router) route(a action.Action) action.Sink {
	if a.Kind() == action.KindAlert {
		return r.fallback
	}
	snap := r.sites.Current()
	if snap == nil {
		return r.fallback
	}
	d, ok := snap.Device(a.Target())
	if !ok || d.Bridge == "" {
		return r.fallback
	}

	r.mu.RLock()
	s, ok := r.bridges[d.Bridge]
	r.mu.RUnlock()
	if !ok {
		return r.fallback
	}
	return s
}

// Log is a sink that only logs. It stands in when no broker is configured.
type Log struct{}

func (Log) Publish(_ context.Context, a action.Action) error {
	log.Info().Str("device", a.Target()).Str("kind", string(a.Kind())).Interface("command", a).Msg("Command")
	return nil
}
