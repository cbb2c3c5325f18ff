// Package mqtt connects hubd to an MQTT broker: device telemetry comes in
// as events, device commands go out as JSON payloads.
package mqtt

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/hubd/internal/config"
)

const (
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
)

// MessageHandler receives a message payload. Handlers run on paho's goroutines.
type MessageHandler func(topic string, payload []byte)

// Client wraps a paho client. Subscriptions are restored on reconnect.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	topics Topics

	subMu         sync.RWMutex
	subscriptions map[string]MessageHandler
}

// Connect dials the broker and waits up to the configured timeout.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:           cfg,
		topics:        Topics{Prefix: cfg.TopicPrefix},
		subscriptions: make(map[string]MessageHandler),
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectTimeout(cfg.ConnectTimeout.Duration()).
		SetKeepAlive(defaultKeepAlive).
		SetWill(c.topics.Prefix+"/status", "offline", 1, true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("MQTT connected")
		c.restoreSubscriptions()
		c.client.Publish(c.topics.Prefix+"/status", 1, true, "online")
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout.Duration()) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, cfg.ConnectTimeout.Duration())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// Topics returns the topic builder for this client's prefix.
func (c *Client) Topics() Topics { return c.topics }

func (c *Client) qos() byte {
	if c.cfg.QoS < 0 || c.cfg.QoS > 2 {
		return 0
	}
	return byte(c.cfg.QoS)
}

// Subscribe registers handler for topic and tracks it for reconnects.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.subMu.Lock()
	c.subscriptions[topic] = handler
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, c.qos(), wrap(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	log.Debug().Str("topic", topic).Msg("MQTT subscribed")
	return nil
}

func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for topic, handler := range c.subscriptions {
		c.client.Subscribe(topic, c.qos(), wrap(handler))
	}
}

// wrap adapts a handler and recovers its panics.
func wrap(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("topic", msg.Topic()).Msg("MQTT handler panicked")
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}

// Publish sends payload and waits for the broker to accept it.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, c.qos(), false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

// Close publishes the offline status and disconnects.
func (c *Client) Close() {
	if c.client == nil {
		return
	}
	if c.client.IsConnected() {
		token := c.client.Publish(c.topics.Prefix+"/status", 1, true, "offline")
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	log.Info().Msg("MQTT disconnected")
}
