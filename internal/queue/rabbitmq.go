package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"data_pipeline/internal/domain"
)

// ErrClosed indicates the broker connection or channel has gone away.
var ErrClosed = errors.New("queue connection closed")

type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	QueueName  string
	Prefetch   int
}

// RabbitMQ implements the queue capability on AMQP. The queue is declared as
// a quorum queue so redeliveries carry the x-delivery-count header, which
// backs the advisory delivery count. Delivery is at-least-once: messages are
// only removed on explicit Ack, and Reject puts them back for redelivery.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	queueName  string
	prefetch   int
	deliveries <-chan amqp.Delivery
	logger     *slog.Logger
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(
		cfg.QueueName,
		true,
		false,
		false,
		false,
		amqp.Table{"x-queue-type": "quorum"},
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		cfg.RoutingKey,
		cfg.Exchange,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"queue", cfg.QueueName,
		"routing_key", cfg.RoutingKey,
	)

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		queueName:  q.Name,
		prefetch:   cfg.Prefetch,
		logger:     logger,
	}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, msg domain.QueueMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug("published message", "message_id", msg.ID, "raw_ref", msg.RawRef)

	return nil
}

// Receive collects up to max deliveries, waiting at most wait for the batch.
// An empty slice with a nil error means the queue was idle.
func (r *RabbitMQ) Receive(ctx context.Context, max int, wait time.Duration) ([]domain.Delivery, error) {
	deliveries, err := r.ensureConsumer()
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	var out []domain.Delivery
	for len(out) < max {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-timer.C:
			return out, nil
		case d, ok := <-deliveries:
			if !ok {
				r.deliveries = nil
				return out, ErrClosed
			}

			var msg domain.QueueMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				// Unparseable body can never process; drop it instead of
				// cycling it through redelivery forever.
				r.logger.Error("discarding malformed message", "error", err)
				_ = d.Nack(false, false)
				continue
			}

			out = append(out, domain.Delivery{
				Message:       msg,
				Receipt:       d.DeliveryTag,
				DeliveryCount: deliveryCount(d),
			})
		}
	}

	return out, nil
}

// Ack removes the message from the queue.
func (r *RabbitMQ) Ack(d domain.Delivery) error {
	return r.channel.Ack(d.Receipt, false)
}

// Reject returns the message to the queue for redelivery.
func (r *RabbitMQ) Reject(d domain.Delivery) error {
	return r.channel.Nack(d.Receipt, false, true)
}

func (r *RabbitMQ) ensureConsumer() (<-chan amqp.Delivery, error) {
	if r.deliveries != nil {
		return r.deliveries, nil
	}

	if err := r.channel.Qos(r.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := r.channel.Consume(
		r.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}

	r.deliveries = deliveries
	return deliveries, nil
}

// deliveryCount derives an advisory receive count. Quorum queues stamp
// x-delivery-count with the number of prior delivery attempts; the header is
// absent on the first delivery.
func deliveryCount(d amqp.Delivery) int {
	if v, ok := d.Headers["x-delivery-count"]; ok {
		switch n := v.(type) {
		case int:
			return n + 1
		case int32:
			return int(n) + 1
		case int64:
			return int(n) + 1
		}
	}
	return 1
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
