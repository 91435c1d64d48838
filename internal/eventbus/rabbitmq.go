package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
)

const publishTimeout = 5 * time.Second

// Publisher is what the outbox relay needs from a broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload json.RawMessage) error
}

// RabbitMQPublisher publishes ledger events to a topic exchange in confirm
// mode. The ledger itself never talks to the broker; only the outbox relay
// does, so a broker outage can delay events but never block a reservation.
type RabbitMQPublisher struct {
	exchange      string
	connection    *amqp.Connection
	channel       *amqp.Channel
	notifyConfirm chan amqp.Confirmation
	logger        zerolog.Logger
}

func NewRabbitMQPublisher(url, exchange string, logger zerolog.Logger) (*RabbitMQPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	p := &RabbitMQPublisher{
		exchange:      exchange,
		connection:    conn,
		channel:       ch,
		notifyConfirm: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
		logger:        logger,
	}
	logger.Info().Str("exchange", exchange).Msg("rabbitmq publisher ready")
	return p, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload json.RawMessage) error {
	err := p.channel.Publish(
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	select {
	case confirm := <-p.notifyConfirm:
		if confirm.Ack {
			return nil
		}
		return errors.New("message published but not confirmed")
	case <-time.After(publishTimeout):
		return errors.New("publish confirmation timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *RabbitMQPublisher) Close() {
	if p.connection != nil && !p.connection.IsClosed() {
		_ = p.connection.Close()
	}
}
