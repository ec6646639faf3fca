package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"guestbook/internal/entry"
	"guestbook/internal/observability"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	retryHeader = "x-retry-count"
	maxRetries  = 3
)

// channelPublisher is the part of *amqp.Channel used to requeue a message.
type channelPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Worker consumes entry events from one queue and records them.
type Worker struct {
	id      int
	queue   string
	db      *sql.DB
	repo    entry.EventRepositoryInterface
	metrics *observability.Metrics
}

func NewWorker(id int, queueName string, db *sql.DB, repo entry.EventRepositoryInterface, metrics *observability.Metrics) *Worker {
	return &Worker{
		id:      id,
		queue:   queueName,
		db:      db,
		repo:    repo,
		metrics: metrics,
	}
}

// Start consumes until ctx is cancelled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("worker %d failed to open channel: %w", w.id, err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("worker %d failed to set QoS: %w", w.id, err)
	}

	msgs, err := ch.Consume(
		w.queue,
		"",
		false, // auto-ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("worker %d failed to start consuming messages: %w", w.id, err)
	}

	logrus.Infof("Worker %d started", w.id)

	for {
		select {
		case <-ctx.Done():
			logrus.Infof("Worker %d stopping", w.id)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("worker %d: delivery channel closed", w.id)
			}
			w.process(ctx, ch, msg)
		}
	}
}

// process handles one delivery and always settles it with exactly one
// Ack or Nack.
func (w *Worker) process(ctx context.Context, ch channelPublisher, msg amqp.Delivery) {
	w.metrics.QueueMessagesConsumed.WithLabelValues(w.queue).Inc()

	event, err := decodeEvent(msg.Body)
	if err != nil {
		eventType := "unknown"
		if event != nil && event.Type != "" {
			eventType = string(event.Type)
		}
		logrus.WithError(err).Error("invalid payload")
		w.metrics.EventsFailedTotal.WithLabelValues(eventType, "invalid_payload").Inc()
		msg.Nack(false, false)
		return
	}

	retryCount := retryCountOf(msg.Headers)
	eventType := string(event.Type)

	logrus.Debugf("Worker %d processing event=%s entry=%s (retry: %d)", w.id, eventType, event.EntryID, retryCount)

	if err := w.handleEvent(ctx, event); err != nil {
		logrus.WithError(err).Error("Failed to record event")

		if errors.Is(err, context.Canceled) {
			msg.Nack(false, true)
			return
		}

		if retryCount >= maxRetries {
			w.metrics.EventsFailedTotal.WithLabelValues(eventType, "max_retries").Inc()
			msg.Nack(false, false)
			return
		}

		logrus.Infof("Worker %d: event failed, requeuing (retry %d/%d)", w.id, retryCount+1, maxRetries)

		if err := republishWithRetry(ch, &msg, retryCount+1); err != nil {
			logrus.WithError(err).Error("Failed to republish message")
			w.metrics.EventsFailedTotal.WithLabelValues(eventType, "republish_error").Inc()
			msg.Nack(false, false)
			return
		}

		w.metrics.QueueMessagesPublished.WithLabelValues(w.queue).Inc()
		msg.Ack(false)
		return
	}

	w.metrics.EventsRecordedTotal.WithLabelValues(eventType).Inc()
	msg.Ack(false)
}

func republishWithRetry(ch channelPublisher, msg *amqp.Delivery, retryCount int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = retryCount

	return ch.PublishWithContext(
		ctx,
		"",             // exchange
		msg.RoutingKey, // routing key (queue name)
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  msg.ContentType,
			DeliveryMode: amqp.Persistent,
			Body:         msg.Body,
			Headers:      headers,
		},
	)
}

// retryCountOf reads the retry header. The broker may hand integers back
// with a different width than they were published with.
func retryCountOf(headers amqp.Table) int32 {
	switch v := headers[retryHeader].(type) {
	case int32:
		return v
	case int64:
		return int32(v)
	case int:
		return int32(v)
	case int16:
		return int32(v)
	default:
		return 0
	}
}
