package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log"
	"net/http"

	"github.com/credinor/crm-backend/internal/infra/queue"
)

// WebhookHandler recibe los eventos que Manychat empuja (alta de subscriber,
// cambio de campo, tag aplicado) y los publica en la cola para procesarlos
// fuera del request.
type WebhookHandler struct {
	Producer queue.QueueProducerInterface
	Token    string
}

func NewWebhookHandler(producer queue.QueueProducerInterface, token string) *WebhookHandler {
	return &WebhookHandler{
		Producer: producer,
		Token:    token,
	}
}

type manychatWebhookEvent struct {
	Event      string `json:"event"`
	Subscriber struct {
		ID           int64                  `json:"id"`
		Phone        string                 `json:"phone"`
		FirstName    string                 `json:"first_name"`
		LastName     string                 `json:"last_name"`
		Email        string                 `json:"email"`
		CustomFields map[string]interface{} `json:"custom_fields"`
		Tags         []string               `json:"tags"`
	} `json:"subscriber"`
}

func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Manychat-Token")
	if h.Token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(h.Token)) != 1 {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Message: "Token inválido"})
		return
	}

	var event manychatWebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "JSON inválido"})
		return
	}

	if event.Subscriber.ID == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Falta el subscriber"})
		return
	}

	payload := queue.SubscriberEventPayload{
		SubscriberID: event.Subscriber.ID,
		Event:        event.Event,
		Phone:        event.Subscriber.Phone,
		FirstName:    event.Subscriber.FirstName,
		LastName:     event.Subscriber.LastName,
		Email:        event.Subscriber.Email,
		CustomFields: event.Subscriber.CustomFields,
		Tags:         event.Subscriber.Tags,
	}

	if err := h.Producer.PublishSubscriberEvent(r.Context(), payload); err != nil {
		log.Printf("❌ No se pudo encolar el evento del subscriber %d: %v", payload.SubscriberID, err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Message: "No se pudo encolar el evento"})
		return
	}

	log.Printf("📬 Evento %s del subscriber %d encolado", payload.Event, payload.SubscriberID)
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
}
