package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// SubscriberEventPayload es el evento que el webhook de Manychat publica para
// procesamiento asíncrono. Refleja el subscriber tal como lo mandó la
// plataforma; el worker lo traduce a lead.
type SubscriberEventPayload struct {
	SubscriberID int64  `json:"subscriber_id"`
	Event        string `json:"event"` // new_subscriber | field_updated | tag_applied

	Phone        string                 `json:"phone"`
	FirstName    string                 `json:"first_name"`
	LastName     string                 `json:"last_name"`
	Email        string                 `json:"email"`
	CustomFields map[string]interface{} `json:"custom_fields"`
	Tags         []string               `json:"tags"`
}

type QueueProducerInterface interface {
	PublishSubscriberEvent(ctx context.Context, payload SubscriberEventPayload) error
}

type RabbitMQProducer struct {
	Conn *amqp.Connection
	Ch   *amqp.Channel
}

func NewProducer(conn *amqp.Connection, ch *amqp.Channel) *RabbitMQProducer {
	return &RabbitMQProducer{
		Conn: conn,
		Ch:   ch,
	}
}

func (p *RabbitMQProducer) PublishSubscriberEvent(ctx context.Context, payload SubscriberEventPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("error al serializar payload: %v", err)
	}

	err = p.Ch.PublishWithContext(ctx,
		ExchangeName, // ex.crm
		RoutingKey,   // k.subscriber
		false,        // Mandatory
		false,        // Immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent, // mensaje durable en disco
		},
	)
	if err != nil {
		return fmt.Errorf("no se pudo publicar en RabbitMQ: %v", err)
	}

	return nil
}
