package site

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/event"
)

type fileSite struct {
	Rooms []fileRoom `yaml:"rooms"`
}

type fileRoom struct {
	ID       string       `yaml:"id"`
	Type     string       `yaml:"type"`
	Adjacent []string     `yaml:"adjacent"`
	Devices  []fileDevice `yaml:"devices"`
}

type fileDevice struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name"`
	Bridge    string   `yaml:"bridge"`
	Address   string   `yaml:"address"`
	Fixture   bool     `yaml:"fixture"`
	Commands  []string `yaml:"commands"`
	Telemetry []string `yaml:"telemetry"`
	Heartbeat string   `yaml:"heartbeat"`
}

// Load reads a site file.
func Load(path string) (*Site, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a site description.
func Parse(data []byte) (*Site, error) {
	var f fileSite
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse site: %w", err)
	}

	rooms := make([]*Room, 0, len(f.Rooms))
	for _, fr := range f.Rooms {
		room := &Room{
			ID:       fr.ID,
			Type:     RoomType(fr.Type),
			Adjacent: fr.Adjacent,
		}
		if room.Type == "" {
			room.Type = RoomOther
		}
		for _, fd := range fr.Devices {
			d, err := buildDevice(fd)
			if err != nil {
				return nil, fmt.Errorf("room %q: %w", fr.ID, err)
			}
			room.Devices = append(room.Devices, d)
		}
		rooms = append(rooms, room)
	}

	s := New(rooms)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func buildDevice(fd fileDevice) (*Device, error) {
	d := &Device{
		ID:      fd.ID,
		Name:    fd.Name,
		Bridge:  fd.Bridge,
		Address: fd.Address,
		Fixture: fd.Fixture,
	}
	if d.Bridge == "" {
		d.Bridge = "mqtt"
	}
	for _, c := range fd.Commands {
		d.Commands = append(d.Commands, action.Kind(c))
	}
	for _, t := range fd.Telemetry {
		d.Telemetry = append(d.Telemetry, event.Kind(t))
	}
	if fd.Heartbeat != "" {
		hb, err := time.ParseDuration(fd.Heartbeat)
		if err != nil {
			return nil, fmt.Errorf("device %q: invalid heartbeat: %w", fd.ID, err)
		}
		d.Heartbeat = hb
	}
	return d, nil
}

var knownCommands = map[action.Kind]bool{
	action.KindSwitch: true, action.KindDim: true, action.KindColorTemperature: true,
	action.KindColorChange: true, action.KindLock: true, action.KindIntent: true, action.KindAlert: true,
}

// Validate checks structural invariants: unique ids, every device in exactly
// one room, known capability kinds, adjacency pointing at existing rooms.
func (s *Site) Validate() error {
	var errs []error
	rooms := make(map[string]bool)
	devices := make(map[string]string)

	for _, r := range s.Rooms {
		if r.ID == "" {
			errs = append(errs, errors.New("room with empty id"))
			continue
		}
		if rooms[r.ID] {
			errs = append(errs, fmt.Errorf("duplicate room %q", r.ID))
		}
		rooms[r.ID] = true

		for _, d := range r.Devices {
			if d.ID == "" {
				errs = append(errs, fmt.Errorf("room %q: device with empty id", r.ID))
				continue
			}
			if other, ok := devices[d.ID]; ok {
				errs = append(errs, fmt.Errorf("device %q is in rooms %q and %q", d.ID, other, r.ID))
			}
			devices[d.ID] = r.ID
			for _, c := range d.Commands {
				if !knownCommands[c] {
					errs = append(errs, fmt.Errorf("device %q: unknown command %q", d.ID, c))
				}
			}
		}
	}

	for _, r := range s.Rooms {
		for _, adj := range r.Adjacent {
			if !rooms[adj] {
				errs = append(errs, fmt.Errorf("room %q: unknown adjacent room %q", r.ID, adj))
			}
		}
	}

	return errors.Join(errs...)
}
