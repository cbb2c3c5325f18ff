package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/event"
)

func TestParseTelemetry(t *testing.T) {
	topics := Topics{Prefix: "hubd"}
	tests := []struct {
		topic      string
		wantKind   event.Kind
		wantDevice string
		wantErr    bool
	}{
		{"hubd/telemetry/motion/hall-pir", event.KindMotion, "hall-pir", false},
		{"hubd/telemetry/temperature/bath", event.KindTemperature, "bath", false},
		{"hubd/command/switch/lamp", "", "", true},
		{"other/telemetry/motion/hall-pir", "", "", true},
		{"hubd/telemetry/motion", "", "", true},
		{"hubd/telemetry/motion/a/b", "", "", true},
		{"hubd/telemetry//dev", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			kind, device, err := topics.ParseTelemetry(tt.topic)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidTopic) {
					t.Fatalf("error = %v, want ErrInvalidTopic", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if kind != tt.wantKind || device != tt.wantDevice {
				t.Errorf("got (%s, %s), want (%s, %s)", kind, device, tt.wantKind, tt.wantDevice)
			}
		})
	}
}

type collector struct{ events []event.Event }

func (c *collector) Publish(ev event.Event) { c.events = append(c.events, ev) }

func TestSource_HandleMessage(t *testing.T) {
	out := &collector{}
	src := NewSource(Topics{Prefix: "hubd"}, out)
	now := time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC)
	src.now = func() time.Time { return now }

	src.HandleMessage("hubd/telemetry/motion/hall-pir", []byte(`{"state":"MOTION"}`))
	src.HandleMessage("hubd/telemetry/motion/hall-pir", []byte(`{"state":"SLEEPY"}`))
	src.HandleMessage("hubd/telemetry/motion/hall-pir", []byte(`not json`))
	src.HandleMessage("hubd/telemetry/unknown/x", []byte(`{}`))
	src.HandleMessage("garbage", nil)

	if len(out.events) != 1 {
		t.Fatalf("published %d events, want 1", len(out.events))
	}
	m, ok := out.events[0].(event.Motion)
	if !ok {
		t.Fatalf("event = %T, want event.Motion", out.events[0])
	}
	if m.State != event.MotionDetected || m.Source() != "hall-pir" || !m.Time().Equal(now) {
		t.Errorf("event = %+v", m)
	}
}

func TestEncodeCommand(t *testing.T) {
	topics := Topics{Prefix: "hubd"}

	topic, payload, err := EncodeCommand(topics, action.ColorTemperatureChange{
		Header:     action.Header{Device: "bed-lamp"},
		Kelvin:     2700,
		Brightness: 40,
		On:         true,
	})
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if topic != "hubd/command/color_temperature/bed-lamp" {
		t.Errorf("topic = %q", topic)
	}
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if body["device"] != "bed-lamp" || body["kelvin"] != float64(2700) || body["brightness"] != float64(40) || body["on"] != true {
		t.Errorf("payload = %s", payload)
	}

	if _, _, err := EncodeCommand(topics, action.Switch{On: true}); !errors.Is(err, ErrPublishFailed) {
		t.Errorf("command without device error = %v, want ErrPublishFailed", err)
	}
}
