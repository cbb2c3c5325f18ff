package history

import (
	"testing"
	"time"

	"github.com/dokzlo13/hubd/internal/event"
)

func TestValue(t *testing.T) {
	h := event.Header{Device: "d", At: time.Now()}
	tests := []struct {
		name string
		ev   event.Event
		want float64
	}{
		{"motion", event.Motion{Header: h, State: event.MotionDetected}, 1},
		{"idle", event.Motion{Header: h, State: event.MotionIdle}, 0},
		{"switch off", event.Switch{Header: h, On: false}, 0},
		{"temperature", event.Temperature{Header: h, Celsius: 21.5}, 21.5},
		{"humidity", event.Humidity{Header: h, Percent: 40}, 40},
		{"locked", event.Lock{Header: h, Locked: true}, 1},
		{"wet", event.Water{Header: h, Wet: true}, 1},
		{"open", event.Latch{Header: h, Open: true}, 1},
		{"battery", event.Battery{Header: h, Percent: 87}, 87},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Value(tt.ev)
			if !ok || got != tt.want {
				t.Errorf("Value() = %v, %v; want %v", got, ok, tt.want)
			}
		})
	}
}

func TestPointFor(t *testing.T) {
	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	p, ok := PointFor(event.Temperature{Header: event.Header{Device: "bath-thermo", At: at}, Celsius: 22}, "bathroom")
	if !ok {
		t.Fatal("PointFor() returned no point")
	}
	if p.Name() != Measurement {
		t.Errorf("Name() = %q, want %q", p.Name(), Measurement)
	}
	if !p.Time().Equal(at) {
		t.Errorf("Time() = %v, want %v", p.Time(), at)
	}

	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	want := map[string]string{"kind": "temperature", "device": "bath-thermo", "room": "bathroom"}
	for k, v := range want {
		if tags[k] != v {
			t.Errorf("tag %s = %q, want %q", k, tags[k], v)
		}
	}

	fields := p.FieldList()
	if len(fields) != 1 || fields[0].Key != "value" || fields[0].Value != 22.0 {
		t.Errorf("fields = %+v", fields)
	}
}
