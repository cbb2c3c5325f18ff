package occupancy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/hubd/internal/policy"
	"github.com/dokzlo13/hubd/internal/site"
)

// manualClock fires timers only when advanced.
type manualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
}

type manualTimer struct {
	clock    *manualClock
	deadline time.Duration
	ch       chan time.Time
	stopped  bool
	fired    bool
}

func (c *manualClock) NewTimer(d time.Duration) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, deadline: c.now + d, ch: make(chan time.Time, 1)}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.deadline <= c.now {
			t.fired = true
			t.ch <- time.Time{}
		}
	}
}

func (c *manualClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (t *manualTimer) C() <-chan time.Time { return t.ch }

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// fixedResolver answers from fields; block makes ActiveSettings wait.
type fixedResolver struct {
	active     policy.LightSettings
	idle       policy.LightSettings
	startIdle  policy.LightSettings
	conditions policy.IdleConditions
	block      chan struct{}
}

func (r *fixedResolver) ActiveSettings(ctx context.Context, _ *site.Room) (policy.LightSettings, error) {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.active, nil
}

func (r *fixedResolver) IdleSettings(context.Context, *site.Room) (policy.LightSettings, error) {
	return r.idle, nil
}

func (r *fixedResolver) StartIdleSettings(context.Context, *site.Room) (policy.LightSettings, error) {
	return r.startIdle, nil
}

func (r *fixedResolver) IdleConditions(_ context.Context, room *site.Room) (policy.IdleConditions, error) {
	if r.conditions == nil {
		return nil, &policy.ConfigurationError{Query: policy.QueryConditions, Room: room.ID}
	}
	return r.conditions, nil
}

type dispatched struct {
	room     string
	settings policy.LightSettings
}

type recordingDispatcher struct {
	mu  sync.Mutex
	log []dispatched
}

func (d *recordingDispatcher) Dispatch(_ context.Context, room *site.Room, s policy.LightSettings) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = append(d.log, dispatched{room: room.ID, settings: s})
	return 1, nil
}

func (d *recordingDispatcher) all() []dispatched {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatched(nil), d.log...)
}

func (d *recordingDispatcher) count(s policy.LightSettings) int {
	n := 0
	for _, e := range d.all() {
		if e.settings == s {
			n++
		}
	}
	return n
}

type recordingAlerter struct {
	mu   sync.Mutex
	errs []error
}

func (a *recordingAlerter) Alert(_ context.Context, _ *site.Room, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

func (a *recordingAlerter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.errs)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

var (
	on  = policy.Switch{On: true}
	off = policy.Switch{On: false}
)

type harness struct {
	ctrl  *Controller
	clock *manualClock
	disp  *recordingDispatcher
	alert *recordingAlerter
}

func startController(t *testing.T, r *fixedResolver, opts Options) *harness {
	t.Helper()
	h := &harness{clock: &manualClock{}, disp: &recordingDispatcher{}, alert: &recordingAlerter{}}
	opts.Clock = h.clock
	h.ctrl = NewController(&site.Room{ID: "kitchen", Type: site.RoomKitchen}, r, h.disp, h.alert, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.ctrl.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func (h *harness) settled() bool {
	return !h.ctrl.Status().Busy && len(h.ctrl.inbox) == 0
}

func TestController_IdleTimeoutDispatchesOnce(t *testing.T) {
	h := startController(t, &fixedResolver{active: on, idle: off, conditions: policy.Timed{Duration: 5 * time.Minute}}, Options{})

	h.ctrl.Motion()
	waitFor(t, "activation", func() bool { return h.disp.count(on) == 1 })

	h.ctrl.Idle()
	waitFor(t, "idle wait", func() bool { return h.ctrl.Status().State == StateWaitingIdle })

	h.clock.Advance(4*time.Minute + 59*time.Second)
	time.Sleep(20 * time.Millisecond)
	if n := h.disp.count(off); n != 0 {
		t.Fatalf("off dispatched %d times before timeout", n)
	}

	h.clock.Advance(time.Second)
	waitFor(t, "off dispatch", func() bool { return h.disp.count(off) == 1 })
	waitFor(t, "idle dispatched", func() bool { return h.ctrl.Status().IdleDispatched })

	// A second IDLE after the off step is ignored until new motion
	h.ctrl.Idle()
	waitFor(t, "settle", h.settled)
	if h.clock.pending() != 0 {
		t.Error("idle after idle dispatch must not start a timer")
	}
	if n := h.disp.count(off); n != 1 {
		t.Errorf("off dispatched %d times, want 1", n)
	}
}

func TestController_MotionCancelsIdleWait(t *testing.T) {
	h := startController(t, &fixedResolver{active: on, idle: off, conditions: policy.Timed{Duration: 5 * time.Minute}}, Options{})

	h.ctrl.Motion()
	h.ctrl.Idle()
	waitFor(t, "idle wait", func() bool { return h.ctrl.Status().State == StateWaitingIdle })

	h.ctrl.Motion()
	waitFor(t, "re-activation", func() bool { return h.ctrl.Status().State == StateActive && h.settled() })

	h.clock.Advance(10 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	if n := h.disp.count(off); n != 0 {
		t.Errorf("off dispatched %d times after cancelled wait", n)
	}
}

func TestController_IgnoredConditionsHold(t *testing.T) {
	h := startController(t, &fixedResolver{active: on, idle: off, conditions: policy.IdleIgnored{}}, Options{})

	h.ctrl.Motion()
	h.ctrl.Idle()
	waitFor(t, "hold", func() bool { return h.ctrl.Status().Hold })

	if h.clock.pending() != 0 {
		t.Error("ignored idle conditions must not start a timer")
	}

	h.ctrl.Motion()
	waitFor(t, "hold released", func() bool { return !h.ctrl.Status().Hold })
}

func TestController_UnresolvedConditionsAlert(t *testing.T) {
	h := startController(t, &fixedResolver{active: on, idle: off}, Options{})

	h.ctrl.Motion()
	h.ctrl.Idle()
	waitFor(t, "alert", func() bool { return h.alert.count() == 1 })

	if st := h.ctrl.Status().State; st != StateActive {
		t.Errorf("State = %v, want active", st)
	}
}

func TestController_LatestEventWins(t *testing.T) {
	r := &fixedResolver{active: on, idle: off, conditions: policy.Timed{Duration: time.Minute}, block: make(chan struct{})}
	h := startController(t, r, Options{})

	h.ctrl.Motion()
	waitFor(t, "busy", func() bool { return h.ctrl.Status().Busy })

	// IDLE supersedes the blocked activation; its cycle never dispatches
	h.ctrl.Idle()
	waitFor(t, "idle wait", func() bool { return h.ctrl.Status().State == StateWaitingIdle })
	close(r.block)

	time.Sleep(20 * time.Millisecond)
	if n := len(h.disp.all()); n != 0 {
		t.Errorf("superseded activation dispatched %d times", n)
	}
}

func TestController_DimBeforeOff(t *testing.T) {
	dim := policy.Temperature{Kelvin: 2700, Brightness: 40}
	h := startController(t, &fixedResolver{
		active:     on,
		idle:       off,
		startIdle:  dim,
		conditions: policy.Timed{Duration: time.Minute},
	}, Options{DimBeforeOff: 30 * time.Second})

	h.ctrl.Motion()
	h.ctrl.Idle()
	waitFor(t, "idle wait", func() bool { return h.ctrl.Status().State == StateWaitingIdle })

	h.clock.Advance(time.Minute)
	waitFor(t, "dimming", func() bool { return h.ctrl.Status().State == StateDimming })
	if h.disp.count(dim) != 1 {
		t.Fatal("start-idle settings not dispatched")
	}

	// Motion during the dim period cancels the off step
	h.ctrl.Motion()
	waitFor(t, "active", func() bool { return h.ctrl.Status().State == StateActive && h.settled() })
	h.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	if n := h.disp.count(off); n != 0 {
		t.Errorf("off dispatched %d times after motion during dim", n)
	}
}

func TestController_RefreshOnlyWhenLit(t *testing.T) {
	warm := policy.Temperature{Kelvin: 2700, Brightness: 80}
	r := &fixedResolver{active: warm, idle: off, conditions: policy.Timed{Duration: time.Minute}}
	h := startController(t, r, Options{})

	h.ctrl.Refresh()
	waitFor(t, "settle", h.settled)
	if len(h.disp.all()) != 0 {
		t.Fatal("refresh of an unlit room dispatched")
	}

	h.ctrl.Motion()
	waitFor(t, "lit", func() bool { return h.ctrl.Status().Lit && h.settled() })

	h.ctrl.Refresh()
	waitFor(t, "refresh", func() bool { return h.disp.count(warm) == 2 })
}
