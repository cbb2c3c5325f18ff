// Package event defines device telemetry as a closed set of variants.
//
// Every variant embeds Header, which carries the source device and the time
// the reading was taken. The unexported marker keeps the set closed so a
// type switch over Event can be checked for exhaustiveness by linters.
package event

import "time"

// Kind names a telemetry type. Capability sets and MQTT topics use it.
type Kind string

const (
	KindMotion      Kind = "motion"
	KindSwitch      Kind = "switch"
	KindTemperature Kind = "temperature"
	KindHumidity    Kind = "humidity"
	KindLock        Kind = "lock"
	KindWater       Kind = "water"
	KindLatch       Kind = "latch"
	KindPresence    Kind = "presence"
	KindBattery     Kind = "battery"
	KindTilt        Kind = "tilt"
	KindMovement    Kind = "movement"
)

// Kinds lists every known telemetry kind.
var Kinds = []Kind{
	KindMotion, KindSwitch, KindTemperature, KindHumidity, KindLock, KindWater,
	KindLatch, KindPresence, KindBattery, KindTilt, KindMovement,
}

// Event is a single telemetry reading.
type Event interface {
	Kind() Kind
	Source() string
	Time() time.Time
	event()
}

// Header is embedded in every variant.
type Header struct {
	Device string    `json:"device"`
	At     time.Time `json:"at"`
}

func (h Header) Source() string  { return h.Device }
func (h Header) Time() time.Time { return h.At }
func (Header) event()            {}

// MotionState is the reported state of a motion sensor.
type MotionState string

const (
	MotionDetected MotionState = "MOTION"
	MotionIdle     MotionState = "IDLE"
)

type Motion struct {
	Header
	State MotionState `json:"state"`
}

type Switch struct {
	Header
	On bool `json:"on"`
}

type Temperature struct {
	Header
	Celsius float64 `json:"celsius"`
}

type Humidity struct {
	Header
	Percent float64 `json:"percent"`
}

type Lock struct {
	Header
	Locked bool `json:"locked"`
}

type Water struct {
	Header
	Wet bool `json:"wet"`
}

type Latch struct {
	Header
	Open bool `json:"open"`
}

type Presence struct {
	Header
	Present bool `json:"present"`
}

type Battery struct {
	Header
	Percent float64 `json:"percent"`
}

type Tilt struct {
	Header
	Tilted bool `json:"tilted"`
}

type Movement struct {
	Header
	Moving bool `json:"moving"`
}

func (Motion) Kind() Kind      { return KindMotion }
func (Switch) Kind() Kind      { return KindSwitch }
func (Temperature) Kind() Kind { return KindTemperature }
func (Humidity) Kind() Kind    { return KindHumidity }
func (Lock) Kind() Kind        { return KindLock }
func (Water) Kind() Kind       { return KindWater }
func (Latch) Kind() Kind       { return KindLatch }
func (Presence) Kind() Kind    { return KindPresence }
func (Battery) Kind() Kind     { return KindBattery }
func (Tilt) Kind() Kind        { return KindTilt }
func (Movement) Kind() Kind    { return KindMovement }
