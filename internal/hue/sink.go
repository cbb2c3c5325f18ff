// Package hue delivers commands to Philips Hue lights and turns the bridge's
// event stream into telemetry.
package hue

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/amimof/huego"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/site"
)

// Mired limits accepted by Hue white ambiance bulbs.
const (
	minMired = 153
	maxMired = 500
)

// StateSetter is the part of *huego.Bridge the sink uses.
type StateSetter interface {
	SetLightStateContext(ctx context.Context, id int, state huego.State) (*huego.Response, error)
	SetGroupStateContext(ctx context.Context, id int, state huego.State) (*huego.Response, error)
}

// Sink sends light commands through a rate-limited bridge.
type Sink struct {
	bridge  StateSetter
	sites   *site.Provider
	limiter *rate.Limiter
}

// NewBridge returns a huego bridge for address and token.
func NewBridge(address, token string) *huego.Bridge {
	return huego.New(address, token)
}

// NewSink creates a sink. rps caps requests per second (default 10).
func NewSink(bridge StateSetter, sites *site.Provider, rps float64) *Sink {
	if rps <= 0 {
		rps = 10
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Sink{
		bridge:  bridge,
		sites:   sites,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Publish implements action.Sink.
func (s *Sink) Publish(ctx context.Context, a action.Action) error {
	state, err := StateFor(a)
	if err != nil {
		return err
	}
	target, err := s.resolve(a.Target())
	if err != nil {
		return err
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("hue rate limit: %w", err)
	}

	log.Debug().Str("device", a.Target()).Str("kind", string(a.Kind())).Str("address", target.String()).Msg("Applying Hue state")

	if target.group {
		_, err = s.bridge.SetGroupStateContext(ctx, target.id, state)
	} else {
		_, err = s.bridge.SetLightStateContext(ctx, target.id, state)
	}
	if err != nil {
		return fmt.Errorf("hue %s: %w", target, err)
	}
	return nil
}

type address struct {
	group bool
	id    int
}

func (a address) String() string {
	if a.group {
		return fmt.Sprintf("group/%d", a.id)
	}
	return fmt.Sprintf("light/%d", a.id)
}

// resolve maps a device id to its Hue address: "3", "light/3" or "group/2".
// Devices without an address use their id.
func (s *Sink) resolve(deviceID string) (address, error) {
	raw := deviceID
	if snap := s.sites.Current(); snap != nil {
		if d, ok := snap.Device(deviceID); ok && d.Address != "" {
			raw = d.Address
		}
	}
	return ParseAddress(raw)
}

// ParseAddress parses a Hue light or group address.
func ParseAddress(raw string) (address, error) {
	var a address
	num := raw
	switch {
	case strings.HasPrefix(raw, "group/"):
		a.group = true
		num = strings.TrimPrefix(raw, "group/")
	case strings.HasPrefix(raw, "light/"):
		num = strings.TrimPrefix(raw, "light/")
	}
	id, err := strconv.Atoi(num)
	if err != nil || id < 0 {
		return a, fmt.Errorf("invalid hue address %q", raw)
	}
	a.id = id
	return a, nil
}

// StateFor converts a command to a Hue light state.
func StateFor(a action.Action) (huego.State, error) {
	switch v := a.(type) {
	case action.Switch:
		return huego.State{On: v.On}, nil
	case action.Dim:
		return huego.State{On: v.On, Bri: PercentToBri(v.Brightness)}, nil
	case action.ColorTemperatureChange:
		st := huego.State{On: v.On, Bri: PercentToBri(v.Brightness)}
		if v.Kelvin > 0 {
			st.Ct = KelvinToMired(v.Kelvin)
		}
		return st, nil
	case action.ColorChange:
		return huego.State{
			On:  v.On,
			Bri: PercentToBri(v.Brightness),
			Hue: uint16(math.Round(math.Mod(v.Hue, 360) / 360 * 65535)),
			Sat: uint8(math.Round(clamp(v.Saturation, 0, 100) / 100 * 254)),
		}, nil
	default:
		return huego.State{}, action.Unsupported(a, "not a light command")
	}
}

// PercentToBri maps 1-100% onto Hue's 1-254 brightness scale.
func PercentToBri(percent int) uint8 {
	p := clamp(float64(percent), 1, 100)
	bri := math.Round(p / 100 * 254)
	if bri < 1 {
		bri = 1
	}
	return uint8(bri)
}

// KelvinToMired converts a color temperature, clamped to the bulb range.
func KelvinToMired(kelvin int) uint16 {
	if kelvin <= 0 {
		return maxMired
	}
	return uint16(clamp(math.Round(1e6/float64(kelvin)), minMired, maxMired))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
