// Package dispatch turns one resolved lighting intent into the best command
// each device in a room actually supports.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/policy"
	"github.com/dokzlo13/hubd/internal/site"
)

// ErrUnresolved is returned when Unhandled reaches the dispatcher.
var ErrUnresolved = errors.New("dispatch: unresolved settings")

// Plan maps settings onto commands, at most one per device.
// Devices that support none of the matching command kinds are skipped.
func Plan(settings policy.LightSettings, devices []*site.Device) ([]action.Action, error) {
	var out []action.Action

	switch s := settings.(type) {
	case policy.Temperature:
		for _, d := range devices {
			if a := lightCommand(d, s.Kelvin, s.Brightness); a != nil {
				out = append(out, a)
			}
		}

	case policy.Brightness:
		for _, d := range devices {
			// Kelvin 0 leaves the current color temperature alone
			if a := lightCommand(d, 0, s.Level); a != nil {
				out = append(out, a)
			}
		}

	case policy.Switch:
		for _, d := range devices {
			if d.Accepts(action.KindSwitch) {
				out = append(out, action.Switch{Header: action.Header{Device: d.ID}, On: s.On})
			}
		}

	case policy.Ignore:
		return nil, nil

	case policy.Unhandled, nil:
		return nil, ErrUnresolved

	default:
		return nil, fmt.Errorf("dispatch: unknown settings %T", settings)
	}

	return out, nil
}

// lightCommand picks the richest command a device supports for a lit state.
func lightCommand(d *site.Device, kelvin, brightness int) action.Action {
	h := action.Header{Device: d.ID}
	switch {
	case d.Accepts(action.KindColorTemperature):
		return action.ColorTemperatureChange{Header: h, Kelvin: kelvin, Brightness: brightness, On: true}
	case d.Accepts(action.KindDim):
		return action.Dim{Header: h, Brightness: brightness, On: true}
	case d.Accepts(action.KindSwitch):
		return action.Switch{Header: h, On: true}
	}
	return nil
}

// Dispatcher publishes planned commands to a sink.
type Dispatcher struct {
	sink action.Sink
}

// New creates a dispatcher.
func New(sink action.Sink) *Dispatcher {
	return &Dispatcher{sink: sink}
}

// Dispatch plans and publishes commands for a room. Each command is sent
// independently: a failure for one device never blocks the others, and the
// returned error joins every failure.
func (d *Dispatcher) Dispatch(ctx context.Context, room *site.Room, settings policy.LightSettings) (int, error) {
	commands, err := Plan(settings, room.Devices)
	if err != nil {
		return 0, err
	}
	return d.Publish(ctx, commands)
}

// Publish sends commands one by one and returns how many were accepted.
func (d *Dispatcher) Publish(ctx context.Context, commands []action.Action) (int, error) {
	var errs []error
	sent := 0
	for _, a := range commands {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.sink.Publish(ctx, a); err != nil {
			if errors.Is(err, action.ErrUnsupportedAction) {
				log.Error().Err(err).Str("device", a.Target()).Msg("Device cannot perform command")
			} else {
				log.Warn().Err(err).Str("device", a.Target()).Str("kind", string(a.Kind())).Msg("Failed to publish command")
			}
			errs = append(errs, err)
			continue
		}
		sent++
	}
	return sent, errors.Join(errs...)
}
