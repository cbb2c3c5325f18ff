package mqtt

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/event"
)

// Publisher accepts decoded events. *eventbus.Bus implements it.
type Publisher interface {
	Publish(ev event.Event)
}

// Source turns telemetry messages into events.
type Source struct {
	topics Topics
	out    Publisher
	now    func() time.Time
}

// NewSource creates a source publishing to out.
func NewSource(topics Topics, out Publisher) *Source {
	return &Source{topics: topics, out: out, now: time.Now}
}

// Attach subscribes the source to every telemetry topic.
func (s *Source) Attach(c *Client) error {
	return c.Subscribe(s.topics.AllTelemetry(), s.HandleMessage)
}

// HandleMessage decodes one telemetry message. Malformed messages are logged and dropped.
func (s *Source) HandleMessage(topic string, payload []byte) {
	kind, device, err := s.topics.ParseTelemetry(topic)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring telemetry message")
		return
	}
	ev, err := event.Decode(kind, device, payload, s.now())
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Failed to decode telemetry")
		return
	}
	s.out.Publish(ev)
}
