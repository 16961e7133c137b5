package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/credinor/crm-backend/internal/infra/queue"
)

type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) PublishSubscriberEvent(ctx context.Context, payload queue.SubscriberEventPayload) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

func postWebhook(h *WebhookHandler, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/manychat", bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("X-Manychat-Token", token)
	}
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func TestWebhookSinToken(t *testing.T) {
	producer := new(MockProducer)
	h := NewWebhookHandler(producer, "secreto")

	rec := postWebhook(h, "", `{"event":"new_subscriber","subscriber":{"id":1}}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	producer.AssertNotCalled(t, "PublishSubscriberEvent", mock.Anything, mock.Anything)
}

func TestWebhookTokenIncorrecto(t *testing.T) {
	producer := new(MockProducer)
	h := NewWebhookHandler(producer, "secreto")

	rec := postWebhook(h, "otro", `{"event":"new_subscriber","subscriber":{"id":1}}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// sin token configurado el endpoint queda cerrado, nunca abierto
func TestWebhookSinTokenConfigurado(t *testing.T) {
	producer := new(MockProducer)
	h := NewWebhookHandler(producer, "")

	rec := postWebhook(h, "", `{"event":"new_subscriber","subscriber":{"id":1}}`)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebhookEncolaEvento(t *testing.T) {
	producer := new(MockProducer)
	producer.On("PublishSubscriberEvent", mock.Anything, mock.MatchedBy(func(p queue.SubscriberEventPayload) bool {
		return p.SubscriberID == 99 && p.Event == "field_updated" && p.Phone == "+5493704123456"
	})).Return(nil)

	h := NewWebhookHandler(producer, "secreto")

	body := `{
		"event": "field_updated",
		"subscriber": {
			"id": 99,
			"phone": "+5493704123456",
			"first_name": "Juan",
			"custom_fields": {"zona": "Clorinda"},
			"tags": ["interesado"]
		}
	}`
	rec := postWebhook(h, "secreto", body)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	producer.AssertExpectations(t)
}

func TestWebhookJSONInvalido(t *testing.T) {
	producer := new(MockProducer)
	h := NewWebhookHandler(producer, "secreto")

	rec := postWebhook(h, "secreto", "{no es json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookSinSubscriber(t *testing.T) {
	producer := new(MockProducer)
	h := NewWebhookHandler(producer, "secreto")

	rec := postWebhook(h, "secreto", `{"event":"new_subscriber"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
