package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPDispatcher publishes jobs to a durable RabbitMQ queue as persistent
// JSON messages.
type AMQPDispatcher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   string
}

// NewAMQPDispatcher connects to the broker and declares the queue.
func NewAMQPDispatcher(url, queue string) (*AMQPDispatcher, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, errors.New("dispatch queue required")
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	return &AMQPDispatcher{conn: conn, channel: channel, queue: queue}, nil
}

// Dispatch publishes the job message with delivery mode persistent.
func (d *AMQPDispatcher) Dispatch(ctx context.Context, msg JobMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job message: %w", err)
	}
	return d.channel.PublishWithContext(ctx, "", d.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.JobID,
		Body:         body,
	})
}

func (d *AMQPDispatcher) Close() error {
	if err := d.channel.Close(); err != nil {
		_ = d.conn.Close()
		return err
	}
	return d.conn.Close()
}
