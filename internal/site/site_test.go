package site

import (
	"strings"
	"testing"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/event"
)

const sampleSite = `
rooms:
  - id: bedroom
    type: bedroom
    adjacent: [hallway]
    devices:
      - id: bedroom-ceiling
        bridge: hue
        address: "3"
        fixture: true
        commands: [switch, dim, color_temperature]
      - id: bedroom-pir
        telemetry: [motion, battery]
        heartbeat: 1h
  - id: hallway
    type: hallway
    devices:
      - id: front-door
        commands: [lock]
        telemetry: [lock, latch]
`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(sampleSite))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if len(s.Rooms) != 2 {
		t.Fatalf("got %d rooms, want 2", len(s.Rooms))
	}

	room, ok := s.RoomOf("bedroom-pir")
	if !ok || room.ID != "bedroom" {
		t.Errorf("RoomOf(bedroom-pir) = %v, %v", room, ok)
	}

	ceiling, ok := s.Device("bedroom-ceiling")
	if !ok {
		t.Fatal("device bedroom-ceiling not found")
	}
	if ceiling.Bridge != "hue" || !ceiling.Fixture {
		t.Errorf("ceiling = %+v", ceiling)
	}
	if !ceiling.Accepts(action.KindColorTemperature) || ceiling.Accepts(action.KindLock) {
		t.Error("ceiling capability set mismatch")
	}

	pir, _ := s.Device("bedroom-pir")
	if pir.Bridge != "mqtt" {
		t.Errorf("default bridge = %q, want mqtt", pir.Bridge)
	}
	if !pir.Emits(event.KindMotion) {
		t.Error("pir should emit motion")
	}
	if pir.Heartbeat.Hours() != 1 {
		t.Errorf("heartbeat = %v, want 1h", pir.Heartbeat)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "duplicate_device",
			yaml: `
rooms:
  - id: a
    devices: [{id: d1}]
  - id: b
    devices: [{id: d1}]
`,
			wantErr: `device "d1" is in rooms`,
		},
		{
			name: "unknown_adjacent",
			yaml: `
rooms:
  - id: a
    adjacent: [nowhere]
`,
			wantErr: "unknown adjacent room",
		},
		{
			name: "unknown_command",
			yaml: `
rooms:
  - id: a
    devices: [{id: d1, commands: [teleport]}]
`,
			wantErr: "unknown command",
		},
		{
			name: "bad_heartbeat",
			yaml: `
rooms:
  - id: a
    devices: [{id: d1, heartbeat: often}]
`,
			wantErr: "invalid heartbeat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestProvider_Swap(t *testing.T) {
	first := New([]*Room{{ID: "a"}})
	p := NewProvider(first)
	if p.Current() != first {
		t.Fatal("Current() should return initial snapshot")
	}

	second := New([]*Room{{ID: "b"}})
	p.Swap(second)
	if p.Current() != second {
		t.Error("Current() should return swapped snapshot")
	}
	if _, ok := p.Current().Room("a"); ok {
		t.Error("old room still visible after swap")
	}
}
