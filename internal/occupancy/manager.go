package occupancy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/event"
	"github.com/dokzlo13/hubd/internal/site"
)

// Manager owns one Controller per room of the current site snapshot and
// routes motion telemetry to them. Rooms never block each other: each
// controller has its own inbox and goroutine.
type Manager struct {
	sites      *site.Provider
	resolver   Resolver
	dispatcher Dispatcher
	alerter    Alerter
	opts       Options

	mu          sync.RWMutex
	controllers map[string]*managed
	wg          sync.WaitGroup
}

type managed struct {
	ctrl   *Controller
	cancel context.CancelFunc
}

// NewManager creates a manager. Controllers start when Run sees the first snapshot.
func NewManager(sites *site.Provider, resolver Resolver, dispatcher Dispatcher, alerter Alerter, opts Options) *Manager {
	return &Manager{
		sites:       sites,
		resolver:    resolver,
		dispatcher:  dispatcher,
		alerter:     alerter,
		opts:        opts,
		controllers: make(map[string]*managed),
	}
}

// Run routes events until ctx is done or events is closed.
func (m *Manager) Run(ctx context.Context, events <-chan event.Event) error {
	snapshots := m.sites.Watch(ctx)
	defer m.wg.Wait()
	defer m.stopAll()

	log.Info().Msg("Occupancy manager started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Occupancy manager stopping")
			return nil

		case s, ok := <-snapshots:
			if !ok {
				return nil
			}
			m.apply(ctx, s)

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			m.Route(ev)
		}
	}
}

// apply reconciles controllers with a new snapshot. Existing rooms keep their
// state and pick up the new topology from their next cycle.
func (m *Manager) apply(ctx context.Context, s *site.Site) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(s.Rooms))
	for _, room := range s.Rooms {
		seen[room.ID] = true
		if mc, ok := m.controllers[room.ID]; ok {
			if !mc.ctrl.UpdateRoom(room) {
				log.Warn().Str("room", room.ID).Msg("Room inbox full, snapshot update dropped")
			}
			continue
		}

		ctrl := NewController(room, m.resolver, m.dispatcher, m.alerter, m.opts)
		roomCtx, cancel := context.WithCancel(ctx)
		m.controllers[room.ID] = &managed{ctrl: ctrl, cancel: cancel}

		m.wg.Add(1)
		go func(id string) {
			defer m.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Str("room", id).Msg("Room controller panicked")
				}
			}()
			ctrl.Run(roomCtx)
		}(room.ID)
		log.Debug().Str("room", room.ID).Str("type", string(room.Type)).Msg("Room controller started")
	}

	for id, mc := range m.controllers {
		if !seen[id] {
			mc.cancel()
			delete(m.controllers, id)
			log.Info().Str("room", id).Msg("Room removed, controller stopped")
		}
	}
}

func (m *Manager) stopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, mc := range m.controllers {
		mc.cancel()
		delete(m.controllers, id)
	}
}

// Route delivers a motion event to its room. Other event kinds are ignored.
func (m *Manager) Route(ev event.Event) {
	motion, ok := ev.(event.Motion)
	if !ok {
		return
	}
	s := m.sites.Current()
	if s == nil {
		return
	}
	room, ok := s.RoomOf(motion.Source())
	if !ok {
		log.Debug().Str("device", motion.Source()).Msg("Motion from unknown device")
		return
	}

	m.mu.RLock()
	mc, ok := m.controllers[room.ID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	var delivered bool
	switch motion.State {
	case event.MotionDetected:
		delivered = mc.ctrl.Motion()
	case event.MotionIdle:
		delivered = mc.ctrl.Idle()
	default:
		return
	}
	if !delivered {
		log.Warn().Str("room", room.ID).Str("device", motion.Source()).Msg("Room inbox full, dropping motion event")
	}
}

// Refresh asks every lit room to re-resolve its active settings.
func (m *Manager) Refresh() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, mc := range m.controllers {
		mc.ctrl.Refresh()
	}
}

// Statuses returns every room's status sorted by room id.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	out := make([]Status, 0, len(m.controllers))
	for _, mc := range m.controllers {
		out = append(out, mc.ctrl.Status())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// SinkAlerter publishes configuration errors as Alert commands addressed to the room.
type SinkAlerter struct {
	Sink action.Sink
}

func (a SinkAlerter) Alert(ctx context.Context, room *site.Room, err error) {
	alert := action.Alert{
		Header:  action.Header{Device: room.ID},
		Level:   "error",
		Message: fmt.Sprintf("lighting configuration error: %v", err),
	}
	if perr := a.Sink.Publish(ctx, alert); perr != nil {
		log.Error().Err(perr).Str("room", room.ID).Msg("Failed to publish alert")
	}
}
