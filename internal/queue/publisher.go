package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrBrokerUnavailable is returned while the publisher waits out the retry
// delay after a failed dial.
var ErrBrokerUnavailable = errors.New("queue: broker unavailable")

const (
	defaultPublishTimeout = 5 * time.Second
	defaultRetryDelay     = 5 * time.Second
)

// CommandPublisher sends switch commands to the command queue.  The
// connection is opened lazily and re-opened after any failure.  Every
// publish is bounded by a timeout, and after a failed dial the broker is
// not tried again until the retry delay passed, so an outage fails
// publishes fast instead of queueing them behind one another.
type CommandPublisher struct {
	url     string
	queue   string
	ttl     time.Duration
	timeout time.Duration
	retry   time.Duration
	log     *slog.Logger
	dial    func(ctx context.Context, url string) (*amqp.Connection, error)

	// sem serialises access to the connection; a buffered channel lets
	// waiters give up when their context ends.
	sem     chan struct{}
	conn    *amqp.Connection
	ch      *amqp.Channel
	retryAt time.Time
}

func NewCommandPublisher(url, queue string, log *slog.Logger) *CommandPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &CommandPublisher{
		url:     url,
		queue:   queue,
		ttl:     30 * time.Second,
		timeout: defaultPublishTimeout,
		retry:   defaultRetryDelay,
		log:     log.With("component", "command-publisher"),
		dial:    dialContext,
		sem:     make(chan struct{}, 1),
	}
}

// dialContext dials the broker with a connect and handshake deadline taken
// from ctx.
func dialContext(ctx context.Context, url string) (*amqp.Connection, error) {
	timeout := defaultPublishTimeout
	if dl, ok := ctx.Deadline(); ok {
		timeout = time.Until(dl)
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	return amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
}

// Publish sends cmd as a plain-text message.  Commands expire after 30s so
// a device that reconnects late does not replay stale toggles.
func (p *CommandPublisher) Publish(ctx context.Context, cmd string) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("publish: %w", ctx.Err())
	}
	defer func() { <-p.sem }()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Transient,
		Expiration:   fmt.Sprintf("%d", p.ttl.Milliseconds()),
		Timestamp:    time.Now().UTC(),
		Body:         []byte(cmd),
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns an open channel, dialling when needed.  Callers hold sem.
func (p *CommandPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
		return p.ch, nil
	}
	p.reset()
	if time.Now().Before(p.retryAt) {
		return nil, ErrBrokerUnavailable
	}

	conn, err := p.dial(ctx, p.url)
	if err != nil {
		p.retryAt = time.Now().Add(p.retry)
		p.log.Warn("command broker dial failed", "retry_in", p.retry, "err", err)
		return nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("command channel open", "queue", p.queue)
	return ch, nil
}

func (p *CommandPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *CommandPublisher) Close() error {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()
	p.reset()
	return nil
}
