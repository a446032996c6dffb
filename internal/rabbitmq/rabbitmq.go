// Package rabbitmq carries reset mails from the service to mail_sender over a
// durable queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"webpub/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultConfirmTimeout = 5 * time.Second

var (
	ErrChannelClosed = errors.New("delivery channel closed")
	ErrExpired       = errors.New("message expired before publishing")
	ErrNotConfirmed  = errors.New("broker rejected the message")
)

type Options struct {
	URL   string
	Queue string
	// ConfirmTimeout bounds the wait for the broker's publisher confirm.
	ConfirmTimeout time.Duration
}

// MailQueue publishes with publisher confirms, so SendMessage returns only once
// the broker has taken responsibility for the message.
type MailQueue struct {
	// mu serialises publishes: confirms are matched to publishes by sequence on one channel.
	mu             sync.Mutex
	conn           *amqp.Connection
	channel        *amqp.Channel
	queue          string
	confirmTimeout time.Duration
}

func Dial(opts Options) (*MailQueue, error) {
	const op = "rabbitmq.Dial"

	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = defaultConfirmTimeout
	}

	conn, err := amqp.Dial(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	closeAll := func() {
		ch.Close()
		conn.Close()
	}

	if _, err := ch.QueueDeclare(opts.Queue, true, false, false, false, nil); err != nil {
		closeAll()
		return nil, fmt.Errorf("%s: declare %q: %w", op, opts.Queue, err)
	}

	if err := ch.Confirm(false); err != nil {
		closeAll()
		return nil, fmt.Errorf("%s: enable confirms: %w", op, err)
	}

	return &MailQueue{
		conn:           conn,
		channel:        ch,
		queue:          opts.Queue,
		confirmTimeout: opts.ConfirmTimeout,
	}, nil
}

func (q *MailQueue) SendMessage(ctx context.Context, msg models.Message) error {
	const op = "rabbitmq.SendMessage"

	pub, err := publishing(msg, time.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	confirm, err := q.channel.PublishWithDeferredConfirmWithContext(ctx, "", q.queue, false, false, pub)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, q.confirmTimeout)
	defer cancel()

	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !acked {
		return fmt.Errorf("%s: %w", op, ErrNotConfirmed)
	}

	return nil
}

// publishing encodes msg. A message with an expiry gets a per-message TTL so the
// broker drops reset mails whose link would already be dead on arrival.
func publishing(msg models.Message, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		Type:         msg.Purpose,
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
	}

	if !msg.ExpiresAt.IsZero() {
		left := msg.ExpiresAt.Sub(now)
		if left < time.Millisecond {
			return amqp.Publishing{}, ErrExpired
		}
		pub.Expiration = strconv.FormatInt(left.Milliseconds(), 10)
	}

	return pub, nil
}

// StartReading consumes the queue until ctx is done, acking each delivery after handle returns.
func (q *MailQueue) StartReading(ctx context.Context, handle func(body []byte)) error {
	const op = "rabbitmq.StartReading"

	if err := q.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	deliveries, err := q.channel.ConsumeWithContext(
		ctx, q.queue, "", false, false, false, false, nil,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("%s: %w", op, ErrChannelClosed)
			}

			handle(d.Body)

			if err := d.Ack(false); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		}
	}
}

func (q *MailQueue) Close() {
	_ = q.channel.Close()
	_ = q.conn.Close()
}
