// Package mqtt carries the device channel over an MQTT broker.  Devices
// publish status strings to the status topic and listen for switch
// commands on the command topic.
package mqtt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/switchstack/switchstack-api/internal/config"
)

var (
	ErrConnectionFailed = errors.New("mqtt: connection failed")
	ErrNotConnected     = errors.New("mqtt: not connected")
	ErrPublishTimeout   = errors.New("mqtt: publish timed out")
)

// Sink receives raw status strings.
type Sink interface {
	Ingest(ctx context.Context, raw string)
}

// Client wraps a paho client.  Subscriptions made through it are restored
// after every reconnect.
type Client struct {
	client       pahomqtt.Client
	qos          byte
	commandTopic string
	log          *slog.Logger

	subMu sync.RWMutex
	subs  map[string]pahomqtt.MessageHandler
}

// Connect dials the broker and waits for the first connection.
func Connect(cfg config.IngestConfig, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		qos:          cfg.MQTTQoS,
		commandTopic: cfg.CommandTopic,
		log:          log.With("component", "mqtt", "broker", cfg.MQTTBroker),
		subs:         make(map[string]pahomqtt.MessageHandler),
	}

	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) {
		c.log.Info("connected")
		c.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.log.Warn("connection lost", "err", err)
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return c, nil
}

// SubscribeStatus feeds every message on topic to sink.
func (c *Client) SubscribeStatus(ctx context.Context, topic string, sink Sink) error {
	h := c.statusHandler(ctx, sink)
	c.subMu.Lock()
	c.subs[topic] = h
	c.subMu.Unlock()

	token := c.client.Subscribe(topic, c.qos, h)
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("mqtt: subscribe %s timed out", topic)
	}
	return token.Error()
}

// statusHandler wraps sink with panic recovery so one bad message cannot
// take down paho's dispatch goroutine.
func (c *Client) statusHandler(ctx context.Context, sink Sink) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("status handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		sink.Ingest(ctx, string(msg.Payload()))
	}
}

func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	for topic, h := range c.subs {
		c.client.Subscribe(topic, c.qos, h)
	}
}

// Publish sends cmd to the command topic.  It implements the device
// registry's command publisher.
func (c *Client) Publish(ctx context.Context, cmd string) error {
	if !c.client.IsConnected() {
		return ErrNotConnected
	}
	token := c.client.Publish(c.commandTopic, c.qos, false, cmd)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultPublishTimeout):
		return ErrPublishTimeout
	}
}

// Close disconnects after letting in-flight work finish.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	return nil
}
