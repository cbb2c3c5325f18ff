package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/config"
	"github.com/dokzlo13/hubd/internal/eventbus"
	"github.com/dokzlo13/hubd/internal/history"
	"github.com/dokzlo13/hubd/internal/hue"
	"github.com/dokzlo13/hubd/internal/mqtt"
	"github.com/dokzlo13/hubd/internal/sink"
	"github.com/dokzlo13/hubd/internal/site"
)

// runFunc starts a tracked background service.
type runFunc func(ctx context.Context, name string, onFatalError func(error), fn func(context.Context) error)

// IOService owns the device-facing transports: the MQTT broker, the Hue
// bridge and the telemetry history writer.
type IOService struct {
	cfg   *config.Config
	sites *site.Provider
	bus   *eventbus.Bus

	// Sink routes commands to the bridge serving each device.
	Sink *sink.Router

	MQTT    *mqtt.Client
	Hue     *hue.EventStream
	History *history.Recorder
}

// NewIOService connects the configured transports. Missing transports are skipped.
func NewIOService(cfg *config.Config, sites *site.Provider, bus *eventbus.Bus) (*IOService, error) {
	s := &IOService{cfg: cfg, sites: sites, bus: bus}

	if cfg.MQTT.IsEnabled() {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		s.MQTT = client
		s.Sink = sink.NewRouter(sites, mqtt.NewSink(client))
	} else {
		log.Warn().Msg("MQTT broker not configured, commands are only logged")
		s.Sink = sink.NewRouter(sites, sink.Log{})
	}

	if cfg.Hue.IsEnabled() {
		bridge := hue.NewBridge(cfg.Hue.Bridge, cfg.Hue.Token)
		s.Sink.Handle(hue.BridgeName, hue.NewSink(bridge, sites, cfg.Hue.RateLimitRPS))
		s.Hue = hue.NewEventStream(cfg.Hue.Bridge, cfg.Hue.Token, sites, bus, hue.DefaultEventStreamConfig())
		log.Info().Str("bridge", cfg.Hue.Bridge).Msg("Hue bridge configured")
	}

	if cfg.Influx.IsEnabled() {
		rec, err := history.Connect(cfg.Influx, sites)
		if err != nil {
			// History is optional; the hub runs without it
			log.Warn().Err(err).Str("url", cfg.Influx.URL).Msg("Telemetry history disabled")
		} else {
			s.History = rec
		}
	}

	return s, nil
}

// Start attaches telemetry sources and the history writer.
func (s *IOService) Start(ctx context.Context, run runFunc, onFatalError func(error)) error {
	if s.MQTT != nil {
		source := mqtt.NewSource(s.MQTT.Topics(), s.bus)
		if err := source.Attach(s.MQTT); err != nil {
			return err
		}
	}

	if s.Hue != nil {
		run(ctx, "hue_eventstream", onFatalError, s.Hue.Run)
	}

	if s.History != nil {
		events := s.bus.Subscribe("history", nil)
		run(ctx, "history", onFatalError, func(ctx context.Context) error {
			return s.History.Run(ctx, events)
		})
	}

	return nil
}

// Close disconnects every transport.
func (s *IOService) Close() {
	if s.History != nil {
		s.History.Close()
	}
	if s.MQTT != nil {
		s.MQTT.Close()
	}
}
