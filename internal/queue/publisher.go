package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const contentTypeJSON = "application/json"

// RabbitMQPublisher sends MessageEvents to the topic exchange. Events are
// transient: live consumers that are offline miss them.
type RabbitMQPublisher struct {
	broker *RabbitMQ
}

func NewRabbitMQPublisher(broker *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{broker: broker}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg MessageEvent) error {
	if p == nil || p.broker == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("invalid message event: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message event: %w", err)
	}

	routingKey := RoutingKey(msg)
	publishing := amqp.Publishing{
		ContentType:   contentTypeJSON,
		DeliveryMode:  amqp.Transient,
		Timestamp:     msg.OccurredAt.UTC(),
		MessageId:     msg.MessageID,
		CorrelationId: msg.CorrelationID,
		Type:          msg.Type,
		Body:          body,
	}

	return p.broker.withChannel(ctx, func(ch *amqp.Channel) error {
		if err := ch.PublishWithContext(ctx, ExchangeName, routingKey, false, false, publishing); err != nil {
			return fmt.Errorf("failed to publish %q: %w", routingKey, err)
		}
		return nil
	})
}

// Close is a no-op; the broker connection is owned and closed by its creator.
func (p *RabbitMQPublisher) Close() error {
	return nil
}
