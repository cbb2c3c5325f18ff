package sink

import (
	"context"
	"testing"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/site"
)

type recorder struct{ got []action.Action }

func (r *recorder) Publish(_ context.Context, a action.Action) error {
	r.got = append(r.got, a)
	return nil
}

func TestRouter(t *testing.T) {
	sites := site.NewProvider(site.New([]*site.Room{
		{ID: "living", Devices: []*site.Device{
			{ID: "hue-lamp", Bridge: "hue"},
			{ID: "zigbee-plug", Bridge: "mqtt"},
			{ID: "orphan", Bridge: "knx"},
			{ID: "plain"},
		}},
	}))
	hue, mqtt, fallback := &recorder{}, &recorder{}, &recorder{}
	r := NewRouter(sites, fallback)
	r.Handle("hue", hue)
	r.Handle("mqtt", mqtt)

	tests := []struct {
		a    action.Action
		want *recorder
	}{
		{action.Switch{Header: action.Header{Device: "hue-lamp"}}, hue},
		{action.Switch{Header: action.Header{Device: "zigbee-plug"}}, mqtt},
		{action.Switch{Header: action.Header{Device: "orphan"}}, fallback},
		{action.Switch{Header: action.Header{Device: "plain"}}, fallback},
		{action.Switch{Header: action.Header{Device: "missing"}}, fallback},
		{action.Alert{Header: action.Header{Device: "hue-lamp"}}, fallback},
	}
	for _, tt := range tests {
		before := len(tt.want.got)
		if err := r.Publish(context.Background(), tt.a); err != nil {
			t.Fatalf("Publish(%s) error = %v", tt.a.Target(), err)
		}
		if len(tt.want.got) != before+1 {
			t.Errorf("%s %s not routed to the expected sink", tt.a.Kind(), tt.a.Target())
		}
	}
}

func TestRouter_NoFallback(t *testing.T) {
	r := NewRouter(site.NewProvider(site.New(nil)), nil)
	if err := r.Publish(context.Background(), action.Switch{Header: action.Header{Device: "x"}}); err == nil {
		t.Error("expected error without a fallback sink")
	}
}
