package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"guestbook/internal/observability"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends JSON messages to one durable queue through the default
// exchange. Each publish uses its own channel, so a closed channel never
// poisons later publishes.
type Publisher struct {
	conn    *amqp.Connection
	queue   string
	metrics *observability.Metrics
}

func NewPublisher(conn *amqp.Connection, queueName string, metrics *observability.Metrics) *Publisher {
	return &Publisher{
		conn:    conn,
		queue:   queueName,
		metrics: metrics,
	}
}

func (p *Publisher) PublishJSON(ctx context.Context, v any) error {
	msg, err := NewJSONPublishing(v)
	if err != nil {
		return err
	}

	ch, err := CreateChannel(p.conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", p.queue, err)
	}

	p.metrics.QueueMessagesPublished.WithLabelValues(p.queue).Inc()
	return nil
}

// NewJSONPublishing encodes v as a persistent application/json message.
func NewJSONPublishing(v any) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode message: %w", err)
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}
