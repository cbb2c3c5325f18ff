// Package transition implements the interpolation law shared by circadian
// lighting and the wake light.
package transition

import "math"

// Interpolate returns start + (end-start)*position with position clamped to [0,1].
func Interpolate(start, end, position float64) float64 {
	return start + (end-start)*Clamp(position)
}

// Clamp limits position to [0,1]. NaN clamps to 0.
func Clamp(position float64) float64 {
	switch {
	case math.IsNaN(position), position < 0:
		return 0
	case position > 1:
		return 1
	}
	return position
}

// Waypoint is a color temperature (Kelvin) and brightness (percent) pair.
type Waypoint struct {
	Kelvin     int
	Brightness int
}

// Between interpolates both channels independently, rounding to integers.
func Between(from, to Waypoint, position float64) Waypoint {
	return Waypoint{
		Kelvin:     int(math.Round(Interpolate(float64(from.Kelvin), float64(to.Kelvin), position))),
		Brightness: int(math.Round(Interpolate(float64(from.Brightness), float64(to.Brightness), position))),
	}
}

// Position returns how far elapsed is through span, clamped to [0,1].
// A non-positive span is treated as already complete.
func Position(elapsed, span float64) float64 {
	if span <= 0 {
		return 1
	}
	return Clamp(elapsed / span)
}
