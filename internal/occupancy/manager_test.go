package occupancy

import (
	"context"
	"testing"
	"time"

	"github.com/dokzlo13/hubd/internal/event"
	"github.com/dokzlo13/hubd/internal/policy"
	"github.com/dokzlo13/hubd/internal/site"
)

func testSite(rooms ...string) *site.Site {
	var rs []*site.Room
	for _, id := range rooms {
		rs = append(rs, &site.Room{
			ID:   id,
			Type: site.RoomOther,
			Devices: []*site.Device{
				{ID: id + "-pir", Telemetry: []event.Kind{event.KindMotion}},
			},
		})
	}
	return site.New(rs)
}

func motion(device string, state event.MotionState) event.Event {
	return event.Motion{Header: event.Header{Device: device, At: time.Now()}, State: state}
}

func TestManager_RoutesByRoom(t *testing.T) {
	provider := site.NewProvider(testSite("kitchen", "hall"))
	disp := &recordingDispatcher{}
	r := &fixedResolver{active: on, idle: off, conditions: policy.Timed{Duration: time.Hour}}
	m := NewManager(provider, r, disp, nil, Options{Clock: &manualClock{}})

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan event.Event, 4)
	done := make(chan struct{})
	go func() {
		m.Run(ctx, events)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, "controllers", func() bool { return len(m.Statuses()) == 2 })

	events <- motion("hall-pir", event.MotionDetected)
	events <- motion("unknown-pir", event.MotionDetected)
	events <- event.Temperature{Header: event.Header{Device: "kitchen-pir"}, Celsius: 21}

	waitFor(t, "hall dispatch", func() bool { return len(disp.all()) == 1 })
	time.Sleep(20 * time.Millisecond)
	got := disp.all()
	if len(got) != 1 || got[0].room != "hall" {
		t.Errorf("dispatches = %+v, want one for hall", got)
	}
}

func TestManager_SnapshotSwap(t *testing.T) {
	provider := site.NewProvider(testSite("kitchen", "hall"))
	m := NewManager(provider, &fixedResolver{active: on}, &recordingDispatcher{}, nil, Options{Clock: &manualClock{}})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, make(chan event.Event))
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	waitFor(t, "initial rooms", func() bool { return len(m.Statuses()) == 2 })

	provider.Swap(testSite("kitchen", "attic"))
	waitFor(t, "swapped rooms", func() bool {
		st := m.Statuses()
		return len(st) == 2 && st[0].Room == "attic" && st[1].Room == "kitchen"
	})
}
