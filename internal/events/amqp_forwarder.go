package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// amqpPublisher - часть *amqp.Channel, которая нужна форвардеру
type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// envelope - формат сообщения во внешней шине
type envelope struct {
	Type        Type      `json:"type"`
	OpenShiftID string    `json:"open_shift_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Payload     Event     `json:"payload"`
}

// AMQPForwarder пересылает доменные события в topic exchange
type AMQPForwarder struct {
	conn     *amqp.Connection
	ch       amqpPublisher
	exchange string
	logger   *zap.Logger
}

// DialAMQPForwarder подключается к брокеру и объявляет exchange
func DialAMQPForwarder(url, exchange string, logger *zap.Logger) (*AMQPForwarder, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp exchange declare %s: %w", exchange, err)
	}
	return &AMQPForwarder{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// RoutingKey - open_shift.<event_type>
func RoutingKey(evt Event) string {
	return "open_shift." + string(evt.EventType())
}

// Handle - обработчик для Bus.Subscribe
func (f *AMQPForwarder) Handle(ctx context.Context, evt Event) error {
	body, err := json.Marshal(envelope{
		Type:        evt.EventType(),
		OpenShiftID: evt.ShiftRef(),
		OccurredAt:  evt.At(),
		Payload:     evt,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = f.ch.PublishWithContext(ctx, f.exchange, RoutingKey(evt), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    evt.At(),
		Type:         string(evt.EventType()),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("amqp publish %s: %w", evt.EventType(), err)
	}
	return nil
}

func (f *AMQPForwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
