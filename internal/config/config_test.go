package config

import (
	"os"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("log:\n  level: debug\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Glass.ArmDelay.Duration() != 10*time.Minute {
		t.Errorf("Glass.ArmDelay = %v, want 10m", cfg.Glass.ArmDelay.Duration())
	}
	if cfg.Occupancy.DefaultIdle.Duration() != 5*time.Minute {
		t.Errorf("Occupancy.DefaultIdle = %v, want 5m", cfg.Occupancy.DefaultIdle.Duration())
	}
	if cfg.HTTP.Port != 8080 {
		t.Errorf("HTTP.Port = %d, want 8080", cfg.HTTP.Port)
	}
	if cfg.Circadian.Night.Kelvin != 2200 {
		t.Errorf("Circadian.Night.Kelvin = %d, want 2200", cfg.Circadian.Night.Kelvin)
	}
	if cfg.MQTT.IsEnabled() {
		t.Error("MQTT should be disabled without a broker")
	}
}

func TestParse_IdleTimeouts(t *testing.T) {
	data := []byte(`
occupancy:
  idle_timeouts:
    hallway: 2m
    living: 0s
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := []struct {
		roomType string
		want     time.Duration
		wantOK   bool
	}{
		{"hallway", 2 * time.Minute, true},
		{"living", 0, true},
		{"kitchen", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.roomType, func(t *testing.T) {
			got, ok := cfg.Occupancy.IdleTimeout(tt.roomType)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("IdleTimeout(%q) = %v, %v; want %v, %v", tt.roomType, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParse_EnvExpansion(t *testing.T) {
	os.Setenv("HUBD_TEST_PSK", "s3cret")
	defer os.Unsetenv("HUBD_TEST_PSK")

	data := []byte(`
glass:
  bridges:
    hall:
      pin: ${HUBD_TEST_PIN:1234}
      psk: ${HUBD_TEST_PSK}
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	b := cfg.Glass.Bridges["hall"]
	if b.PIN != "1234" {
		t.Errorf("PIN = %q, want default %q", b.PIN, "1234")
	}
	if b.PSK != "s3cret" {
		t.Errorf("PSK = %q, want %q", b.PSK, "s3cret")
	}
}

func TestParse_WakeLightRequiresRoom(t *testing.T) {
	_, err := Parse([]byte("wake_light:\n  enabled: true\n"))
	if err == nil {
		t.Fatal("expected error for wake light without room")
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	_, err := Parse([]byte("glass:\n  arm_delay: soon\n"))
	if err == nil {
		t.Fatal("expected error for invalid duration")
	}
}
