package site

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/latest"
)

// Provider serves the current Site snapshot. Swapping replaces the topology
// for all future cycles; cycles already running keep the snapshot they
// started with.
type Provider struct {
	value latest.Value[*Site]
	path  string
}

// NewProvider creates a provider holding an initial snapshot.
func NewProvider(initial *Site) *Provider {
	p := &Provider{}
	if initial != nil {
		p.value.Set(initial)
	}
	return p
}

// NewFileProvider loads the site from path and remembers it for Reload.
func NewFileProvider(path string) (*Provider, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	p := NewProvider(s)
	p.path = path
	return p, nil
}

// Current returns the active snapshot (nil before the first Swap).
func (p *Provider) Current() *Site {
	s, _ := p.value.Get()
	return s
}

// Swap installs a new snapshot.
func (p *Provider) Swap(s *Site) {
	p.value.Set(s)
	log.Info().Int("rooms", len(s.Rooms)).Int("devices", len(s.Devices())).Msg("Site snapshot installed")
}

// Watch streams the latest snapshot.
func (p *Provider) Watch(ctx context.Context) <-chan *Site {
	return p.value.Watch(ctx)
}

// Reload re-reads the site file. On error the current snapshot stays active.
func (p *Provider) Reload() error {
	if p.path == "" {
		return nil
	}
	s, err := Load(p.path)
	if err != nil {
		return err
	}
	p.Swap(s)
	return nil
}
