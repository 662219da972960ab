package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/ousashop/shop-backend/internal/models"
)

// EmailPublisher publishes email messages to the emails exchange.
type EmailPublisher struct {
	ch *amqp.Channel
}

// NewEmailPublisher wraps an open channel.
func NewEmailPublisher(ch *amqp.Channel) *EmailPublisher {
	return &EmailPublisher{ch: ch}
}

// Publish serializes the message and publishes it persistently.
func (p *EmailPublisher) Publish(msg models.EmailMessage) error {
	const op = "rabbitmq.EmailPublisher.Publish"
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		EmailExchange,
		EmailRoutingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
