package event

import (
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	now := time.Date(2026, 10, 17, 7, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		kind    Kind
		payload string
		want    Event
		wantErr bool
	}{
		{
			name:    "motion_detected",
			kind:    KindMotion,
			payload: `{"state":"MOTION"}`,
			want:    Motion{Header: Header{Device: "pir-1", At: now}, State: MotionDetected},
		},
		{
			name:    "motion_with_timestamp",
			kind:    KindMotion,
			payload: `{"state":"IDLE","at":"2026-10-17T06:59:00Z"}`,
			want:    Motion{Header: Header{Device: "pir-1", At: now.Add(-time.Minute)}, State: MotionIdle},
		},
		{
			name:    "device_from_topic_wins",
			kind:    KindLock,
			payload: `{"device":"other","locked":true}`,
			want:    Lock{Header: Header{Device: "pir-1", At: now}, Locked: true},
		},
		{
			name:    "empty_payload",
			kind:    KindLatch,
			payload: ``,
			want:    Latch{Header: Header{Device: "pir-1", At: now}},
		},
		{
			name:    "invalid_motion_state",
			kind:    KindMotion,
			payload: `{"state":"MAYBE"}`,
			wantErr: true,
		},
		{
			name:    "unknown_kind",
			kind:    Kind("smoke"),
			payload: `{}`,
			wantErr: true,
		},
		{
			name:    "bad_json",
			kind:    KindBattery,
			payload: `{"percent":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.kind, "pir-1", []byte(tt.payload), now)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode() = %#v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
