// Package history records telemetry in InfluxDB.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/config"
	"github.com/dokzlo13/hubd/internal/event"
	"github.com/dokzlo13/hubd/internal/site"
)

// Measurement is the InfluxDB measurement telemetry is written to.
const Measurement = "telemetry"

const (
	defaultConnectTimeout = 10 * time.Second
	defaultBatchSize      = 100
	defaultFlushMillis    = 10_000
)

// ErrConnectionFailed is returned when the server cannot be reached at startup.
var ErrConnectionFailed = errors.New("influxdb: connection failed")

// Recorder writes every telemetry event as a point. Writes are batched and
// never block the caller.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	sites    *site.Provider
}

// Connect pings the server and opens a non-blocking write API.
func Connect(cfg config.InfluxConfig, sites *site.Provider) (*Recorder, error) {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(defaultBatchSize).
			SetFlushInterval(defaultFlushMillis),
	)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	r := &Recorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
		sites:    sites,
	}
	go func(errs <-chan error) {
		for err := range errs {
			log.Warn().Err(err).Msg("InfluxDB write failed")
		}
	}(r.writeAPI.Errors())

	log.Info().Str("url", cfg.URL).Str("bucket", cfg.Bucket).Msg("Telemetry history enabled")
	return r, nil
}

// Run records events until ctx is done or events is closed.
func (r *Recorder) Run(ctx context.Context, events <-chan event.Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Record(ev)
		}
	}
}

// Record queues one event.
func (r *Recorder) Record(ev event.Event) {
	room := ""
	if snap := r.sites.Current(); snap != nil {
		if rm, ok := snap.RoomOf(ev.Source()); ok {
			room = rm.ID
		}
	}
	if p, ok := PointFor(ev, room); ok {
		r.writeAPI.WritePoint(p)
	}
}

// Close flushes pending points and closes the client.
func (r *Recorder) Close() {
	r.writeAPI.Flush()
	r.client.Close()
}

// PointFor builds the point for ev. Events without a numeric value yield false.
func PointFor(ev event.Event, room string) (*write.Point, bool) {
	value, ok := Value(ev)
	if !ok {
		return nil, false
	}
	tags := map[string]string{
		"kind":   string(ev.Kind()),
		"device": ev.Source(),
	}
	if room != "" {
		tags["room"] = room
	}
	return write.NewPoint(Measurement, tags, map[string]any{"value": value}, ev.Time()), true
}

// Value is the numeric reading of an event. Boolean states map to 0 or 1.
func Value(ev event.Event) (float64, bool) {
	switch v := ev.(type) {
	case event.Motion:
		return boolValue(v.State == event.MotionDetected), true
	case event.Switch:
		return boolValue(v.On), true
	case event.Temperature:
		return v.Celsius, true
	case event.Humidity:
		return v.Percent, true
	case event.Lock:
		return boolValue(v.Locked), true
	case event.Water:
		return boolValue(v.Wet), true
	case event.Latch:
		return boolValue(v.Open), true
	case event.Presence:
		return boolValue(v.Present), true
	case event.Battery:
		return v.Percent, true
	case event.Tilt:
		return boolValue(v.Tilted), true
	case event.Movement:
		return boolValue(v.Moving), true
	}
	return 0, false
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
