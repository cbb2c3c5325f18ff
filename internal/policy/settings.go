package policy

import (
	"fmt"
	"time"
)

// LightSettings is the lighting intent a policy resolves for a room.
// Variants: Temperature, Brightness, Switch, Ignore, Unhandled.
type LightSettings interface {
	lightSettings()
	String() string
}

// Temperature is a white color temperature in Kelvin with brightness in percent.
type Temperature struct {
	Kelvin     int
	Brightness int
}

// Brightness is a brightness level in percent without a color opinion.
type Brightness struct {
	Level int
}

// Switch is a plain on/off intent.
type Switch struct {
	On bool
}

// Ignore stops resolution: take no device action this cycle.
type Ignore struct{}

// Unhandled means the policy has no opinion; the next policy is asked.
type Unhandled struct{}

func (Temperature) lightSettings() {}
func (Brightness) lightSettings()  {}
func (Switch) lightSettings()      {}
func (Ignore) lightSettings()      {}
func (Unhandled) lightSettings()   {}

func (s Temperature) String() string { return fmt.Sprintf("temperature(%dK, %d%%)", s.Kelvin, s.Brightness) }
func (s Brightness) String() string  { return fmt.Sprintf("brightness(%d%%)", s.Level) }
func (s Switch) String() string {
	if s.On {
		return "switch(on)"
	}
	return "switch(off)"
}
func (Ignore) String() string    { return "ignore" }
func (Unhandled) String() string { return "unhandled" }

// IdleConditions is how a room decides it has gone idle.
// Variants: Timed, IdleIgnored, IdleUnhandled.
type IdleConditions interface {
	idleConditions()
	String() string
}

// Timed idles the room after Duration without motion.
type Timed struct {
	Duration time.Duration
}

// IdleIgnored keeps the room active until the next motion.
type IdleIgnored struct{}

// IdleUnhandled means the policy has no opinion.
type IdleUnhandled struct{}

func (Timed) idleConditions()         {}
func (IdleIgnored) idleConditions()   {}
func (IdleUnhandled) idleConditions() {}

func (c Timed) String() string       { return "timed(" + c.Duration.String() + ")" }
func (IdleIgnored) String() string   { return "ignored" }
func (IdleUnhandled) String() string { return "unhandled" }

func settingsUnhandled(s LightSettings) bool {
	_, ok := s.(Unhandled)
	return s == nil || ok
}

func conditionsUnhandled(c IdleConditions) bool {
	_, ok := c.(IdleUnhandled)
	return c == nil || ok
}
