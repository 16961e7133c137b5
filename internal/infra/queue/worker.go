package queue

import (
	"context"
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/credinor/crm-backend/internal/entity"
)

// InboundSyncer es el contrato contra el servicio de sincronización: recibe un
// subscriber y devuelve el lead resultante, o nil si el intento falló.
type InboundSyncer interface {
	SyncManychatToLead(ctx context.Context, sub *entity.Subscriber) *entity.Lead
}

type Worker struct {
	Channel *amqp.Channel
	Syncer  InboundSyncer
}

func NewWorker(ch *amqp.Channel, syncer InboundSyncer) *Worker {
	return &Worker{
		Channel: ch,
		Syncer:  syncer,
	}
}

func (w *Worker) Start(queueName string) {
	msgs, err := w.Channel.Consume(
		queueName, // cola
		"",        // consumer
		false,     // auto-ack (manual, más seguro)
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		log.Fatalf("❌ No se pudo registrar el consumidor RabbitMQ: %s", err)
	}

	forever := make(chan bool)

	go func() {
		for d := range msgs {
			log.Printf("📥 [WORKER] Evento recibido de RabbitMQ")

			var payload SubscriberEventPayload
			if err := json.Unmarshal(d.Body, &payload); err != nil {
				log.Printf("❌ [WORKER] JSON inválido: %s", err)
				// mensaje podrido: rechazar sin requeue para no trabar la cola
				d.Nack(false, false)
				continue
			}

			log.Printf("⚙️ [WORKER] Procesando evento %s del subscriber %d", payload.Event, payload.SubscriberID)

			lead := w.Syncer.SyncManychatToLead(context.Background(), payload.toSubscriber())
			if lead == nil {
				log.Printf("❌ [WORKER] Sync inbound falló para el subscriber %d", payload.SubscriberID)
				// a la DLQ; el detalle quedó en sync_logs
				d.Nack(false, false)
			} else {
				log.Printf("✅ [WORKER] Subscriber %d aplicado sobre lead %s", payload.SubscriberID, lead.ID)
				d.Ack(false)
			}
		}
	}()

	log.Printf(" [*] Worker corriendo y esperando en la cola '%s'", queueName)
	<-forever
}

func (p SubscriberEventPayload) toSubscriber() *entity.Subscriber {
	return &entity.Subscriber{
		ID:           p.SubscriberID,
		Phone:        p.Phone,
		FirstName:    p.FirstName,
		LastName:     p.LastName,
		Email:        p.Email,
		CustomFields: p.CustomFields,
		Tags:         p.Tags,
	}
}
