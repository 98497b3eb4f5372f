// README: RabbitMQ connection dial for the domain event publisher.
package infra

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

func NewAMQP(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	return conn, nil
}
