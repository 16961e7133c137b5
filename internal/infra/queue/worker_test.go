package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscriberEventPayloadRoundTrip(t *testing.T) {
	payload := SubscriberEventPayload{
		SubscriberID: 123,
		Event:        "new_subscriber",
		Phone:        "+5493704123456",
		FirstName:    "Juan",
		LastName:     "Pérez",
		CustomFields: map[string]interface{}{"zona": "Formosa Capital"},
		Tags:         []string{"interesado"},
	}

	body, err := json.Marshal(payload)
	assert.NoError(t, err)

	// el worker tiene que poder leer lo que el webhook publicó
	var decoded SubscriberEventPayload
	assert.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestPayloadToSubscriber(t *testing.T) {
	payload := SubscriberEventPayload{
		SubscriberID: 55,
		Phone:        "+5493704999000",
		FirstName:    "Ana",
		LastName:     "García",
		Tags:         []string{"vip"},
	}

	sub := payload.toSubscriber()

	assert.Equal(t, int64(55), sub.ID)
	assert.Equal(t, "Ana García", sub.FullName())
	assert.Equal(t, []string{"vip"}, sub.Tags)
}
