package transition

import (
	"math"
	"testing"
)

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name       string
		start, end float64
		position   float64
		want       float64
	}{
		{"start", 2000, 5000, 0.0, 2000},
		{"end", 2000, 5000, 1.0, 5000},
		{"middle", 2000, 5000, 0.5, 3500},
		{"below_zero_clamps_to_start", 2000, 5000, -0.5, 2000},
		{"above_one_clamps_to_end", 2000, 5000, 1.7, 5000},
		{"descending", 100, 1, 0.5, 50.5},
		{"nan_clamps_to_start", 10, 20, math.NaN(), 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpolate(tt.start, tt.end, tt.position)
			if got != tt.want {
				t.Errorf("Interpolate(%v, %v, %v) = %v, want %v", tt.start, tt.end, tt.position, got, tt.want)
			}
		})
	}
}

func TestBetween(t *testing.T) {
	night := Waypoint{Kelvin: 2200, Brightness: 20}
	day := Waypoint{Kelvin: 5000, Brightness: 100}

	if got := Between(night, day, 0); got != night {
		t.Errorf("Between(0) = %+v, want %+v", got, night)
	}
	if got := Between(night, day, 1); got != day {
		t.Errorf("Between(1) = %+v, want %+v", got, day)
	}
	if got := Between(night, day, 0.25); got != (Waypoint{Kelvin: 2900, Brightness: 40}) {
		t.Errorf("Between(0.25) = %+v", got)
	}
}

func TestPosition(t *testing.T) {
	if got := Position(30, 60); got != 0.5 {
		t.Errorf("Position(30, 60) = %v, want 0.5", got)
	}
	if got := Position(90, 60); got != 1 {
		t.Errorf("Position(90, 60) = %v, want 1", got)
	}
	if got := Position(5, 0); got != 1 {
		t.Errorf("Position with zero span = %v, want 1", got)
	}
}
