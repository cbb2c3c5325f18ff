// Package site holds the read-only model of rooms, devices and their
// capability sets. A Site is an immutable snapshot; the Provider swaps
// whole snapshots when the configuration changes.
package site

import (
	"time"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/event"
)

// RoomType is the semantic type of a room, used to scope policies.
type RoomType string

const (
	RoomBedroom  RoomType = "bedroom"
	RoomKitchen  RoomType = "kitchen"
	RoomHallway  RoomType = "hallway"
	RoomLiving   RoomType = "living"
	RoomBathroom RoomType = "bathroom"
	RoomOffice   RoomType = "office"
	RoomDining   RoomType = "dining"
	RoomGarage   RoomType = "garage"
	RoomOutdoor  RoomType = "outdoor"
	RoomOther    RoomType = "other"
)

// Device is a physical device and what it can do.
type Device struct {
	ID        string
	Name      string
	Bridge    string // which sink delivers its commands ("mqtt", "hue", ...)
	Address   string // bridge-specific address, e.g. Hue light number
	Fixture   bool   // a light fixture (turned off when security arms)
	Commands  []action.Kind
	Telemetry []event.Kind
	Heartbeat time.Duration // expected telemetry interval, 0 if none
}

// Accepts reports whether the device accepts the command kind.
func (d *Device) Accepts(k action.Kind) bool {
	for _, c := range d.Commands {
		if c == k {
			return true
		}
	}
	return false
}

// Emits reports whether the device emits the telemetry kind.
func (d *Device) Emits(k event.Kind) bool {
	for _, t := range d.Telemetry {
		if t == k {
			return true
		}
	}
	return false
}

// Room is a set of devices with a semantic type.
type Room struct {
	ID       string
	Type     RoomType
	Devices  []*Device
	Adjacent []string
}

// Site is one configuration generation of the whole house.
type Site struct {
	Rooms []*Room

	roomByID     map[string]*Room
	roomByDevice map[string]*Room
	deviceByID   map[string]*Device
}

// New builds a Site and its lookup indexes. It does not validate; see Validate.
func New(rooms []*Room) *Site {
	s := &Site{
		Rooms:        rooms,
		roomByID:     make(map[string]*Room, len(rooms)),
		roomByDevice: make(map[string]*Room),
		deviceByID:   make(map[string]*Device),
	}
	for _, r := range rooms {
		s.roomByID[r.ID] = r
		for _, d := range r.Devices {
			s.roomByDevice[d.ID] = r
			s.deviceByID[d.ID] = d
		}
	}
	return s
}

// Room returns a room by id.
func (s *Site) Room(id string) (*Room, bool) {
	r, ok := s.roomByID[id]
	return r, ok
}

// RoomOf returns the room a device belongs to.
func (s *Site) RoomOf(deviceID string) (*Room, bool) {
	r, ok := s.roomByDevice[deviceID]
	return r, ok
}

// Device returns a device by id.
func (s *Site) Device(id string) (*Device, bool) {
	d, ok := s.deviceByID[id]
	return d, ok
}

// Devices returns every device in the site, in room order.
func (s *Site) Devices() []*Device {
	var out []*Device
	for _, r := range s.Rooms {
		out = append(out, r.Devices...)
	}
	return out
}
