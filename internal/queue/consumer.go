// Package queue carries the device channel over RabbitMQ: a consumer that
// feeds status strings to the ingestor and a publisher for switch commands.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Sink receives raw status strings.  It must not block for long and never
// reports errors; the ingestor logs and drops bad input itself.
type Sink interface {
	Ingest(ctx context.Context, raw string)
}

// StatusConsumer consumes the status queue and hands every body to Sink.
type StatusConsumer struct {
	URL   string
	Queue string
	Sink  Sink
	Log   *slog.Logger

	// Prefetch bounds unacknowledged deliveries per channel.
	Prefetch int
}

// Run connects to the broker, declares the status queue (durable) and
// consumes until ctx is cancelled.  Lost connections are re-dialled with
// exponential backoff capped at 30s.
func (c *StatusConsumer) Run(ctx context.Context) error {
	log := c.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "status-consumer", "queue", c.Queue)

	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			log.Warn("dial broker failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		log.Info("connected to broker")

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended; reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *StatusConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	prefetch := c.Prefetch
	if prefetch <= 0 {
		prefetch = 50
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle ingests one delivery and always acks it: malformed status strings
// are dropped, never redelivered.
func (c *StatusConsumer) handle(ctx context.Context, d amqp.Delivery) {
	c.Sink.Ingest(ctx, string(d.Body))
	if err := d.Ack(false); err != nil && c.Log != nil {
		c.Log.Warn("ack failed", "err", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
