package hue

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/event"
	"github.com/dokzlo13/hubd/internal/site"
)

// ErrMaxReconnectsExceeded is returned when the maximum number of reconnect attempts is exceeded.
var ErrMaxReconnectsExceeded = errors.New("max reconnects exceeded")

// BridgeName is the site bridge name of devices served by the Hue bridge.
const BridgeName = "hue"

// Publisher accepts decoded events. *eventbus.Bus implements it.
type Publisher interface {
	Publish(ev event.Event)
}

// EventStreamConfig contains configuration for event stream reconnection.
type EventStreamConfig struct {
	MinBackoff    time.Duration // Minimum backoff between reconnects
	MaxBackoff    time.Duration // Maximum backoff between reconnects
	Multiplier    float64       // Backoff multiplier
	MaxReconnects int           // Max reconnect attempts, 0 = infinite
}

// DefaultEventStreamConfig returns sensible defaults for event stream configuration.
func DefaultEventStreamConfig() EventStreamConfig {
	return EventStreamConfig{
		MinBackoff:    1 * time.Second,
		MaxBackoff:    2 * time.Minute,
		Multiplier:    2.0,
		MaxReconnects: 0, // infinite
	}
}

// EventStream listens to the Hue v2 event stream (SSE) and publishes
// telemetry for sensors that appear in the site model.
type EventStream struct {
	address    string
	token      string
	sites      *site.Provider
	out        Publisher
	httpClient *http.Client
	config     EventStreamConfig
	now        func() time.Time
}

// NewEventStream creates a new event stream listener
func NewEventStream(address, token string, sites *site.Provider, out Publisher, config EventStreamConfig) *EventStream {
	transport := &http.Transport{
		// Hue bridges use a self-signed certificate
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec
	}

	return &EventStream{
		address: address,
		token:   token,
		sites:   sites,
		out:     out,
		httpClient: &http.Client{
			Transport: transport,
			// No timeout for SSE - it's a long-lived connection
		},
		config: config,
		now:    time.Now,
	}
}

// Run starts listening to the event stream with automatic reconnection.
// Returns ErrMaxReconnectsExceeded if max reconnects is exceeded.
func (e *EventStream) Run(ctx context.Context) error {
	retryCount := 0
	currentBackoff := e.config.MinBackoff

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := e.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			retryCount++
			if e.config.MaxReconnects > 0 && retryCount > e.config.MaxReconnects {
				log.Error().
					Int("max_reconnects", e.config.MaxReconnects).
					Msg("Event stream: max reconnects exceeded, terminating")
				return ErrMaxReconnectsExceeded
			}

			log.Warn().
				Err(err).
				Dur("backoff", currentBackoff).
				Int("retry", retryCount).
				Msg("Event stream disconnected, reconnecting")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(currentBackoff):
			}

			nextBackoff := time.Duration(float64(currentBackoff) * e.config.Multiplier)
			if nextBackoff > e.config.MaxBackoff {
				nextBackoff = e.config.MaxBackoff
			}
			currentBackoff = nextBackoff
			continue
		}

		// Reset retry count and backoff on successful connection
		retryCount = 0
		currentBackoff = e.config.MinBackoff
	}
}

func (e *EventStream) connect(ctx context.Context) error {
	url := fmt.Sprintf("https://%s/eventstream/clip/v2", e.address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("hue-application-key", e.token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	log.Info().Str("address", e.address).Msg("Connected to Hue event stream")

	scanner := bufio.NewScanner(resp.Body)
	var dataBuffer strings.Builder

	for scanner.Scan() {
		line := scanner.Text()

		if line == ": hi" {
			log.Debug().Msg("Received event stream greeting")
			continue
		}

		// Empty line marks end of event
		if line == "" {
			if dataBuffer.Len() > 0 {
				e.processEvent(dataBuffer.String())
				dataBuffer.Reset()
			}
			continue
		}

		if strings.HasPrefix(line, "data: ") {
			dataBuffer.WriteString(strings.TrimPrefix(line, "data: "))
		}
	}

	return scanner.Err()
}

type streamMessage struct {
	Type string     `json:"type"`
	Data []resource `json:"data"`
}

type resourceRef struct {
	RID string `json:"rid"`
}

type resource struct {
	ID    string       `json:"id"`
	Type  string       `json:"type"`
	Owner *resourceRef `json:"owner,omitempty"`

	Motion *struct {
		Motion bool `json:"motion"`
	} `json:"motion,omitempty"`

	Button *struct {
		ButtonReport *struct {
			Event string `json:"event"`
		} `json:"button_report,omitempty"`
	} `json:"button,omitempty"`

	Temperature *struct {
		Temperature float64 `json:"temperature"`
	} `json:"temperature,omitempty"`

	ContactReport *struct {
		State string `json:"state"`
	} `json:"contact_report,omitempty"`

	PowerState *struct {
		BatteryLevel *int `json:"battery_level,omitempty"`
	} `json:"power_state,omitempty"`

	Status string `json:"status,omitempty"`
}

func (e *EventStream) processEvent(data string) {
	var messages []streamMessage
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		log.Warn().Err(err).Str("data", data).Msg("Failed to parse event")
		return
	}

	for _, msg := range messages {
		for _, res := range msg.Data {
			if ev := e.translate(res); ev != nil {
				e.out.Publish(ev)
			}
		}
	}
}

// translate maps a Hue resource update to an event for the owning site device.
// Updates for devices not in the site model, or of unknown types, yield nil.
func (e *EventStream) translate(res resource) event.Event {
	if res.Type == "zigbee_connectivity" {
		log.Debug().Str("id", res.ID).Str("status", res.Status).Msg("Connectivity event")
		return nil
	}

	deviceID, ok := e.deviceFor(res)
	if !ok {
		log.Trace().Str("item_type", res.Type).Str("id", res.ID).Msg("Event for unmapped resource")
		return nil
	}
	h := event.Header{Device: deviceID, At: e.now()}

	switch res.Type {
	case "motion":
		if res.Motion == nil {
			return nil
		}
		state := event.MotionIdle
		if res.Motion.Motion {
			state = event.MotionDetected
		}
		return event.Motion{Header: h, State: state}

	case "button":
		if res.Button == nil || res.Button.ButtonReport == nil {
			return nil
		}
		switch res.Button.ButtonReport.Event {
		case "short_release":
			return event.Switch{Header: h, On: true}
		case "long_release":
			return event.Switch{Header: h, On: false}
		}

	case "temperature":
		if res.Temperature != nil {
			return event.Temperature{Header: h, Celsius: res.Temperature.Temperature}
		}

	case "contact":
		if res.ContactReport != nil {
			return event.Latch{Header: h, Open: res.ContactReport.State == "no_contact"}
		}

	case "device_power":
		if res.PowerState != nil && res.PowerState.BatteryLevel != nil {
			return event.Battery{Header: h, Percent: float64(*res.PowerState.BatteryLevel)}
		}
	}
	return nil
}

// deviceFor finds the Hue device whose address is the resource or its owner.
func (e *EventStream) deviceFor(res resource) (string, bool) {
	snap := e.sites.Current()
	if snap == nil {
		return "", false
	}
	for _, d := range snap.Devices() {
		if d.Bridge != BridgeName || d.Address == "" {
			continue
		}
		if d.Address == res.ID || (res.Owner != nil && d.Address == res.Owner.RID) {
			return d.ID, true
		}
	}
	return "", false
}
