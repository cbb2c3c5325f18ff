// Package occupancy runs one state machine per room that turns motion
// telemetry into active and idle lighting.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/policy"
	"github.com/dokzlo13/hubd/internal/site"
)

// Resolver answers lighting queries for a room. *policy.Chain implements it.
type Resolver interface {
	ActiveSettings(ctx context.Context, room *site.Room) (policy.LightSettings, error)
	IdleSettings(ctx context.Context, room *site.Room) (policy.LightSettings, error)
	StartIdleSettings(ctx context.Context, room *site.Room) (policy.LightSettings, error)
	IdleConditions(ctx context.Context, room *site.Room) (policy.IdleConditions, error)
}

// Dispatcher sends resolved settings to a room's devices.
type Dispatcher interface {
	Dispatch(ctx context.Context, room *site.Room, settings policy.LightSettings) (int, error)
}

// Alerter reports configuration errors to a person.
type Alerter interface {
	Alert(ctx context.Context, room *site.Room, err error)
}

// State is the controller's position in the occupancy cycle.
type State int

const (
	// StateActive means no idle timer is running.
	StateActive State = iota
	// StateWaitingIdle means the idle timer is running.
	StateWaitingIdle
	// StateDimming means the start-idle step ran and the off timer is running.
	StateDimming
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateWaitingIdle:
		return "waiting_idle"
	case StateDimming:
		return "dimming"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of a controller.
type Status struct {
	Room           string `json:"room"`
	State          State  `json:"-"`
	StateName      string `json:"state"`
	Lit            bool   `json:"lit"`
	IdleDispatched bool   `json:"idle_dispatched"` // off was sent; only new motion re-activates
	Hold           bool   `json:"hold"`            // idle conditions were ignored
	Busy           bool   `json:"busy"`            // a resolution is in flight
}

// Options tunes a controller.
type Options struct {
	DimBeforeOff time.Duration // zero disables the start-idle step
	InboxSize    int
	Clock        Clock
}

type inputKind int

const (
	inputMotion inputKind = iota
	inputIdle
	inputRefresh
	inputRoom
)

type input struct {
	kind inputKind
	room *site.Room
}

type cycleKind int

const (
	cycleActivate cycleKind = iota
	cycleRefresh
	cycleConditions
	cycleStartIdle
	cycleIdle
)

func (k cycleKind) String() string {
	switch k {
	case cycleActivate:
		return "activate"
	case cycleRefresh:
		return "refresh"
	case cycleConditions:
		return "idle_conditions"
	case cycleStartIdle:
		return "start_idle"
	case cycleIdle:
		return "idle"
	}
	return "unknown"
}

type result struct {
	gen        uint64
	kind       cycleKind
	room       *site.Room
	settings   policy.LightSettings
	conditions policy.IdleConditions
	err        error
}

// Controller owns one room. All state is confined to the Run goroutine;
// resolution and dispatch run in a cancellable cycle goroutine so policy
// I/O never blocks the next event. A new event cancels the cycle in flight.
type Controller struct {
	resolver   Resolver
	dispatcher Dispatcher
	alerter    Alerter
	opts       Options

	inbox   chan input
	results chan result

	// loop-owned
	room           *site.Room
	state          State
	lit            bool
	idleDispatched bool
	hold           bool
	timer          Timer
	gen            uint64
	cancel         context.CancelFunc

	statusMu sync.RWMutex
	status   Status
}

// NewController creates a controller for room.
func NewController(room *site.Room, resolver Resolver, dispatcher Dispatcher, alerter Alerter, opts Options) *Controller {
	if opts.InboxSize <= 0 {
		opts.InboxSize = 32
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	c := &Controller{
		resolver:   resolver,
		dispatcher: dispatcher,
		alerter:    alerter,
		opts:       opts,
		inbox:      make(chan input, opts.InboxSize),
		results:    make(chan result),
		room:       room,
	}
	c.publishStatus()
	return c
}

// Motion delivers a MOTION event. Returns false if the inbox is full.
func (c *Controller) Motion() bool { return c.send(input{kind: inputMotion}) }

// Idle delivers an IDLE event. Returns false if the inbox is full.
func (c *Controller) Idle() bool { return c.send(input{kind: inputIdle}) }

// Refresh asks a lit room to re-resolve its active settings.
func (c *Controller) Refresh() bool { return c.send(input{kind: inputRefresh}) }

// UpdateRoom installs a new snapshot of the room for future cycles.
func (c *Controller) UpdateRoom(room *site.Room) bool {
	return c.send(input{kind: inputRoom, room: room})
}

func (c *Controller) send(in input) bool {
	select {
	case c.inbox <- in:
		return true
	default:
		return false
	}
}

// Status returns the latest status.
func (c *Controller) Status() Status {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return c.status
}

// Run processes inputs until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	defer c.stopTimer()
	defer c.cancelCycle()

	for {
		var timerC <-chan time.Time
		if c.timer != nil {
			timerC = c.timer.C()
		}

		select {
		case <-ctx.Done():
			return
		case in := <-c.inbox:
			c.handle(ctx, in)
		case <-timerC:
			c.timer = nil
			c.onTimer(ctx)
		case res := <-c.results:
			c.onResult(ctx, res)
		}
		c.publishStatus()
	}
}

func (c *Controller) handle(ctx context.Context, in input) {
	switch in.kind {
	case inputMotion:
		c.stopTimer()
		c.state = StateActive
		c.idleDispatched = false
		c.hold = false
		c.start(ctx, cycleActivate)

	case inputIdle:
		if c.state != StateActive || c.idleDispatched || c.hold {
			log.Debug().Str("room", c.room.ID).Str("state", c.state.String()).Msg("Idle ignored")
			return
		}
		c.start(ctx, cycleConditions)

	case inputRefresh:
		if c.cancel != nil || !c.lit || c.idleDispatched || c.state == StateDimming {
			return
		}
		c.start(ctx, cycleRefresh)

	case inputRoom:
		if in.room != nil {
			c.room = in.room
		}
	}
}

func (c *Controller) onTimer(ctx context.Context) {
	if c.state == StateWaitingIdle && c.opts.DimBeforeOff > 0 {
		c.start(ctx, cycleStartIdle)
		return
	}
	c.start(ctx, cycleIdle)
}

// start supersedes any cycle in flight and launches kind against the current room snapshot.
func (c *Controller) start(ctx context.Context, kind cycleKind) {
	c.cancelCycle()
	c.gen++
	gen := c.gen
	room := c.room

	cycleCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		res := result{gen: gen, kind: kind, room: room}
		func() {
			defer func() {
				if r := recover(); r != nil {
					res.err = fmt.Errorf("cycle panicked: %v", r)
				}
			}()
			c.runCycle(cycleCtx, &res)
		}()
		select {
		case c.results <- res:
		case <-ctx.Done():
		}
	}()
}

func (c *Controller) runCycle(ctx context.Context, res *result) {
	var err error
	switch res.kind {
	case cycleActivate, cycleRefresh:
		res.settings, err = c.resolver.ActiveSettings(ctx, res.room)
	case cycleStartIdle:
		res.settings, err = c.resolver.StartIdleSettings(ctx, res.room)
	case cycleIdle:
		res.settings, err = c.resolver.IdleSettings(ctx, res.room)
	case cycleConditions:
		res.conditions, res.err = c.resolver.IdleConditions(ctx, res.room)
		return
	}
	if err != nil {
		res.err = err
		return
	}
	if _, err := c.dispatcher.Dispatch(ctx, res.room, res.settings); err != nil {
		// Partial delivery still counts: commands are fire-and-forget
		log.Warn().Err(err).Str("room", res.room.ID).Str("cycle", res.kind.String()).Msg("Dispatch incomplete")
	}
}

func (c *Controller) onResult(ctx context.Context, res result) {
	if res.gen != c.gen {
		return // superseded
	}
	c.cancelCycle()

	if res.err != nil {
		c.onError(ctx, res)
		return
	}

	switch res.kind {
	case cycleActivate, cycleRefresh:
		c.lit = lights(res.settings)

	case cycleConditions:
		switch cond := res.conditions.(type) {
		case policy.Timed:
			c.state = StateWaitingIdle
			c.timer = c.opts.Clock.NewTimer(cond.Duration)
			log.Debug().Str("room", res.room.ID).Dur("timeout", cond.Duration).Msg("Waiting for idle")
		case policy.IdleIgnored:
			c.hold = true
			log.Debug().Str("room", res.room.ID).Msg("Idle ignored until next motion")
		}

	case cycleStartIdle:
		c.state = StateDimming
		c.timer = c.opts.Clock.NewTimer(c.opts.DimBeforeOff)

	case cycleIdle:
		c.state = StateActive
		c.idleDispatched = true
		if !isIgnore(res.settings) {
			c.lit = false
		}
		log.Info().Str("room", res.room.ID).Str("settings", res.settings.String()).Msg("Room idle")
	}
}

func (c *Controller) onError(ctx context.Context, res result) {
	if errors.Is(res.err, context.Canceled) {
		return
	}
	if policy.IsConfigurationError(res.err) {
		log.Error().Err(res.err).Str("room", res.room.ID).Str("cycle", res.kind.String()).Msg("Policy chain did not resolve")
		if c.alerter != nil {
			c.alerter.Alert(ctx, res.room, res.err)
		}
		return
	}
	log.Warn().Err(res.err).Str("room", res.room.ID).Str("cycle", res.kind.String()).Msg("Cycle failed, waiting for next event")
}

func (c *Controller) cancelCycle() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// stopTimer cancels the idle wait. It never dispatches.
func (c *Controller) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) publishStatus() {
	c.statusMu.Lock()
	c.status = Status{
		Room:           c.room.ID,
		State:          c.state,
		StateName:      c.state.String(),
		Lit:            c.lit,
		IdleDispatched: c.idleDispatched,
		Hold:           c.hold,
		Busy:           c.cancel != nil,
	}
	c.statusMu.Unlock()
}

func isIgnore(s policy.LightSettings) bool {
	_, ok := s.(policy.Ignore)
	return ok
}

// lights reports whether settings leave the room lit.
func lights(s policy.LightSettings) bool {
	switch v := s.(type) {
	case policy.Temperature, policy.Brightness:
		return true
	case policy.Switch:
		return v.On
	}
	return false
}
