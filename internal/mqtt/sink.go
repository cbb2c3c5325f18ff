package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dokzlo13/hubd/internal/action"
)

// Sink publishes commands to per-device command topics.
type Sink struct {
	client *Client
	topics Topics
}

// NewSink creates a sink on c.
func NewSink(c *Client) *Sink {
	return &Sink{client: c, topics: c.Topics()}
}

// Publish implements action.Sink.
func (s *Sink) Publish(ctx context.Context, a action.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topic, payload, err := EncodeCommand(s.topics, a)
	if err != nil {
		return err
	}
	return s.client.Publish(topic, payload)
}

// EncodeCommand returns the topic and JSON payload for a.
func EncodeCommand(t Topics, a action.Action) (string, []byte, error) {
	if a.Target() == "" {
		return "", nil, fmt.Errorf("%w: %s command without a device", ErrPublishFailed, a.Kind())
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s command: %w", a.Kind(), err)
	}
	return t.Command(a.Kind(), a.Target()), payload, nil
}
