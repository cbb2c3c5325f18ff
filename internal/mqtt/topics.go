package mqtt

import (
	"fmt"
	"strings"

	"github.com/dokzlo13/hubd/internal/action"
	"github.com/dokzlo13/hubd/internal/event"
)

// Topics builds hubd topic names under a prefix:
//
//	{prefix}/telemetry/{kind}/{device}  devices -> hubd
//	{prefix}/command/{kind}/{device}    hubd -> devices
type Topics struct {
	Prefix string
}

// AllTelemetry is the subscription pattern for every telemetry topic.
func (t Topics) AllTelemetry() string {
	return t.Prefix + "/telemetry/+/+"
}

// Telemetry returns the topic a device publishes kind telemetry on.
func (t Topics) Telemetry(kind event.Kind, device string) string {
	return fmt.Sprintf("%s/telemetry/%s/%s", t.Prefix, kind, device)
}

// Command returns the topic a device receives kind commands on.
func (t Topics) Command(kind action.Kind, device string) string {
	return fmt.Sprintf("%s/command/%s/%s", t.Prefix, kind, device)
}

// ParseTelemetry splits a telemetry topic into kind and device.
func (t Topics) ParseTelemetry(topic string) (event.Kind, string, error) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/telemetry/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	kind, device, ok := strings.Cut(rest, "/")
	if !ok || kind == "" || device == "" || strings.Contains(device, "/") {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidTopic, topic)
	}
	return event.Kind(kind), device, nil
}
