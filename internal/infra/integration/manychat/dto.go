package manychat

import (
	"encoding/json"

	"github.com/credinor/crm-backend/internal/entity"
)

// UpsertInput es lo que el sync arma a partir de un Lead para crear o
// actualizar su subscriber. Los custom fields y el teléfono viajan en la misma
// llamada; los tags se aplican después, de a uno.
type UpsertInput struct {
	Phone        string                 `json:"phone"`
	FirstName    string                 `json:"first_name"`
	LastName     string                 `json:"last_name,omitempty"`
	Email        string                 `json:"email,omitempty"`
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
}

// apiResponse es el sobre uniforme de la API de Manychat
type apiResponse struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

func (r *apiResponse) ok() bool { return r.Status == "success" }

type subscriberDTO struct {
	ID           int64            `json:"id"`
	Phone        string           `json:"phone"`
	FirstName    string           `json:"first_name"`
	LastName     string           `json:"last_name"`
	Email        string           `json:"email"`
	CustomFields []customFieldDTO `json:"custom_fields"`
	Tags         []tagDTO         `json:"tags"`
}

type customFieldDTO struct {
	ID    int64       `json:"id"`
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type tagDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func (d *subscriberDTO) toEntity() *entity.Subscriber {
	sub := &entity.Subscriber{
		ID:        d.ID,
		Phone:     d.Phone,
		FirstName: d.FirstName,
		LastName:  d.LastName,
		Email:     d.Email,
	}

	if len(d.CustomFields) > 0 {
		sub.CustomFields = make(map[string]interface{}, len(d.CustomFields))
		for _, cf := range d.CustomFields {
			if cf.Value != nil {
				sub.CustomFields[cf.Name] = cf.Value
			}
		}
	}

	for _, t := range d.Tags {
		sub.Tags = append(sub.Tags, t.Name)
	}

	return sub
}

type createSubscriberRequest struct {
	Phone        string                 `json:"phone"`
	FirstName    string                 `json:"first_name,omitempty"`
	LastName     string                 `json:"last_name,omitempty"`
	Email        string                 `json:"email,omitempty"`
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
	HasOptInSMS  bool                   `json:"has_opt_in_sms"`
}

type updateSubscriberRequest struct {
	SubscriberID int64                  `json:"subscriber_id"`
	FirstName    string                 `json:"first_name,omitempty"`
	LastName     string                 `json:"last_name,omitempty"`
	Email        string                 `json:"email,omitempty"`
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
}

type tagRequest struct {
	SubscriberID int64  `json:"subscriber_id"`
	TagName      string `json:"tag_name"`
}

type customFieldRequest struct {
	SubscriberID int64       `json:"subscriber_id"`
	FieldName    string      `json:"field_name"`
	FieldValue   interface{} `json:"field_value"`
}

type sendContentRequest struct {
	SubscriberID int64       `json:"subscriber_id"`
	Data         contentData `json:"data"`
}

type contentData struct {
	Version string      `json:"version"`
	Content contentBody `json:"content"`
}

type contentBody struct {
	Messages []contentMessage `json:"messages"`
}

type contentMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}
