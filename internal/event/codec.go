package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decode builds an Event of the given kind from a JSON payload.
// The device comes from the transport (topic) and wins over any device field
// in the payload. A missing timestamp is filled with now.
func Decode(kind Kind, device string, payload []byte, now time.Time) (Event, error) {
	var ev Event
	var err error

	switch kind {
	case KindMotion:
		ev, err = decodeInto[Motion](payload, device, now)
	case KindSwitch:
		ev, err = decodeInto[Switch](payload, device, now)
	case KindTemperature:
		ev, err = decodeInto[Temperature](payload, device, now)
	case KindHumidity:
		ev, err = decodeInto[Humidity](payload, device, now)
	case KindLock:
		ev, err = decodeInto[Lock](payload, device, now)
	case KindWater:
		ev, err = decodeInto[Water](payload, device, now)
	case KindLatch:
		ev, err = decodeInto[Latch](payload, device, now)
	case KindPresence:
		ev, err = decodeInto[Presence](payload, device, now)
	case KindBattery:
		ev, err = decodeInto[Battery](payload, device, now)
	case KindTilt:
		ev, err = decodeInto[Tilt](payload, device, now)
	case KindMovement:
		ev, err = decodeInto[Movement](payload, device, now)
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s event: %w", kind, err)
	}

	if m, ok := ev.(Motion); ok && m.State != MotionDetected && m.State != MotionIdle {
		return nil, fmt.Errorf("invalid motion state %q", m.State)
	}
	return ev, nil
}

// variant is satisfied by pointers to event structs so decodeInto can fix up
// the embedded header.
type variant[T any] interface {
	*T
	Event
	header() *Header
}

func decodeInto[T any, P variant[T]](payload []byte, device string, now time.Time) (Event, error) {
	var v T
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &v); err != nil {
			return nil, err
		}
	}
	h := P(&v).header()
	h.Device = device
	if h.At.IsZero() {
		h.At = now
	}
	return any(v).(Event), nil
}

func (e *Motion) header() *Header      { return &e.Header }
func (e *Switch) header() *Header      { return &e.Header }
func (e *Temperature) header() *Header { return &e.Header }
func (e *Humidity) header() *Header    { return &e.Header }
func (e *Lock) header() *Header        { return &e.Header }
func (e *Water) header() *Header       { return &e.Header }
func (e *Latch) header() *Header       { return &e.Header }
func (e *Presence) header() *Header    { return &e.Header }
func (e *Battery) header() *Header     { return &e.Header }
func (e *Tilt) header() *Header        { return &e.Header }
func (e *Movement) header() *Header    { return &e.Header }
