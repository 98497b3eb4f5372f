// README: Domain event publishing; AMQP topic exchange with a no-op fallback.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys published by the core. Consumers bind patterns like "offer.*".
const (
	BookingCreated   = "booking.created"
	BookingCancelled = "booking.cancelled"
	BookingNoMatch   = "booking.no_match"
	OfferCreated     = "offer.created"
	OfferAccepted    = "offer.accepted"
	OfferExpired     = "offer.expired"
	JobStarted       = "job.started"
	JobCompleted     = "job.completed"
	JobDisputed      = "job.disputed"
	RatingSubmitted  = "rating.submitted"
	TipCaptured      = "tip.captured"
	TipFailed        = "tip.failed"
)

type Publisher interface {
	Publish(ctx context.Context, key string, v any) error
	Close() error
}

// AMQPPublisher publishes JSON bodies to a durable topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        b,
	})
}

func (p *AMQPPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	return nil
}

// Nop drops every event; wired when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
func (Nop) Close() error                               { return nil }
