// Package action defines device commands as a closed set of variants.
// Commands are fire-and-forget: nothing in the core waits for delivery.
package action

import (
	"context"
	"errors"
	"fmt"
)

// Kind names a command type. Device capability sets list the kinds they accept.
type Kind string

const (
	KindSwitch           Kind = "switch"
	KindDim              Kind = "dim"
	KindColorTemperature Kind = "color_temperature"
	KindColorChange      Kind = "color"
	KindLock             Kind = "lock"
	KindIntent           Kind = "intent"
	KindAlert            Kind = "alert"
)

// Action is a single command for a target device.
type Action interface {
	Kind() Kind
	Target() string
	action()
}

// Header is embedded in every variant.
type Header struct {
	Device string `json:"device"`
}

func (h Header) Target() string { return h.Device }
func (Header) action()          {}

// Switch turns a device on or off.
type Switch struct {
	Header
	On bool `json:"on"`
}

// Dim sets brightness in percent (1-100).
type Dim struct {
	Header
	Brightness int  `json:"brightness"`
	On         bool `json:"on"`
}

// ColorTemperatureChange sets white color temperature and brightness.
// Kelvin 0 leaves the current temperature unchanged.
type ColorTemperatureChange struct {
	Header
	Kelvin     int  `json:"kelvin,omitempty"`
	Brightness int  `json:"brightness"`
	On         bool `json:"on"`
}

// ColorChange sets a hue/saturation color.
type ColorChange struct {
	Header
	Hue        float64 `json:"hue"`        // degrees, 0-360
	Saturation float64 `json:"saturation"` // percent, 0-100
	Brightness int     `json:"brightness"`
	On         bool    `json:"on"`
}

// Lock locks or unlocks a lock.
type Lock struct {
	Header
	Locked bool `json:"locked"`
}

// Intent is a named, device-specific request (e.g. "play", "open").
type Intent struct {
	Header
	Name string            `json:"name"`
	Args map[string]string `json:"args,omitempty"`
}

// Alert notifies a person or panel about something that needs attention.
type Alert struct {
	Header
	Level   string `json:"level"`
	Message string `json:"message"`
}

func (Switch) Kind() Kind                 { return KindSwitch }
func (Dim) Kind() Kind                    { return KindDim }
func (ColorTemperatureChange) Kind() Kind { return KindColorTemperature }
func (ColorChange) Kind() Kind            { return KindColorChange }
func (Lock) Kind() Kind                   { return KindLock }
func (Intent) Kind() Kind                 { return KindIntent }
func (Alert) Kind() Kind                  { return KindAlert }

// Sink publishes commands. Implementations must be safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, a Action) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, a Action) error

func (f SinkFunc) Publish(ctx context.Context, a Action) error { return f(ctx, a) }

// ErrUnsupportedAction is returned by a sink asked to deliver a command its
// devices cannot perform.
var ErrUnsupportedAction = errors.New("unsupported action")

// Unsupported wraps ErrUnsupportedAction with the offending command.
func Unsupported(a Action, reason string) error {
	return fmt.Errorf("%w: %s for %s: %s", ErrUnsupportedAction, a.Kind(), a.Target(), reason)
}
