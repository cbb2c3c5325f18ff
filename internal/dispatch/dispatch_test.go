package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/policy"
	"github.com/dokzlo13/hubd/internal/site"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []action.Action
	fail map[string]error
}

func (s *recordingSink) Publish(_ context.Context, a action.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[a.Target()]; err != nil {
		return err
	}
	s.sent = append(s.sent, a)
	return nil
}

func device(id string, kinds ...action.Kind) *site.Device {
	return &site.Device{ID: id, Commands: kinds}
}

var mixedRoom = []*site.Device{
	device("plug", action.KindSwitch),
	device("dimmer", action.KindSwitch, action.KindDim),
	device("bulb", action.KindSwitch, action.KindDim, action.KindColorTemperature),
	device("sensor"),
}

func TestPlan(t *testing.T) {
	tests := []struct {
		name     string
		settings policy.LightSettings
		want     []action.Action
	}{
		{
			name:     "temperature degrades per device",
			settings: policy.Temperature{Kelvin: 4000, Brightness: 80},
			want: []action.Action{
				action.Switch{Header: action.Header{Device: "plug"}, On: true},
				action.Dim{Header: action.Header{Device: "dimmer"}, Brightness: 80, On: true},
				action.ColorTemperatureChange{Header: action.Header{Device: "bulb"}, Kelvin: 4000, Brightness: 80, On: true},
			},
		},
		{
			name:     "brightness keeps color temperature",
			settings: policy.Brightness{Level: 30},
			want: []action.Action{
				action.Switch{Header: action.Header{Device: "plug"}, On: true},
				action.Dim{Header: action.Header{Device: "dimmer"}, Brightness: 30, On: true},
				action.ColorTemperatureChange{Header: action.Header{Device: "bulb"}, Brightness: 30, On: true},
			},
		},
		{
			name:     "off reaches every switch",
			settings: policy.Switch{On: false},
			want: []action.Action{
				action.Switch{Header: action.Header{Device: "plug"}, On: false},
				action.Switch{Header: action.Header{Device: "dimmer"}, On: false},
				action.Switch{Header: action.Header{Device: "bulb"}, On: false},
			},
		},
		{
			name:     "ignore sends nothing",
			settings: policy.Ignore{},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Plan(tt.settings, mixedRoom)
			if err != nil {
				t.Fatalf("Plan() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Plan() returned %d commands, want %d: %v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("command %d = %#v, want %#v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPlan_ColorOnlyDeviceNotSwitchedOff(t *testing.T) {
	got, err := Plan(policy.Switch{On: false}, []*site.Device{device("strip", action.KindColorTemperature)})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("Plan() = %v, want no commands", got)
	}
}

func TestPlan_Unhandled(t *testing.T) {
	if _, err := Plan(policy.Unhandled{}, mixedRoom); !errors.Is(err, ErrUnresolved) {
		t.Errorf("Plan(unhandled) error = %v, want ErrUnresolved", err)
	}
}

func TestDispatch_FailuresAreIndependent(t *testing.T) {
	boom := errors.New("bridge offline")
	sink := &recordingSink{fail: map[string]error{"dimmer": boom}}
	d := New(sink)

	room := &site.Room{ID: "kitchen", Devices: mixedRoom}
	sent, err := d.Dispatch(context.Background(), room, policy.Temperature{Kelvin: 4000, Brightness: 80})
	if !errors.Is(err, boom) {
		t.Fatalf("Dispatch() error = %v, want %v", err, boom)
	}
	if sent != 2 || len(sink.sent) != 2 {
		t.Errorf("sent = %d (%d recorded), want 2", sent, len(sink.sent))
	}
}
