package manychat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/credinor/crm-backend/internal/entity"
)

const defaultBaseURL = "https://api.manychat.com"

// Client envuelve la API HTTP de Manychat. Todas las llamadas pasan por la
// cola de despacho serializada (ver queue.go); el rate limit es global al
// proceso aunque los requests del CRM lleguen en paralelo.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	queue   *dispatchQueue
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithDispatch(depth int, interval time.Duration) Option {
	return func(c *Client) { c.queue = newDispatchQueue(depth, interval) }
}

// NewClient falla si no hay API key: un cliente sin credenciales no existe,
// el chequeo de "está configurado" es responsabilidad de quien lo construye.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("manychat: MANYCHAT_API_KEY no configurado")
	}

	c := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.queue == nil {
		c.queue = newDispatchQueue(defaultQueueDepth, defaultDispatchInterval)
	}
	return c, nil
}

// Close detiene el loop de despacho
func (c *Client) Close() { c.queue.close() }

// GetSubscriberByID devuelve nil si la plataforma no conoce el id; error solo
// ante fallas de transporte o de autenticación.
func (c *Client) GetSubscriberByID(ctx context.Context, id int64) (*entity.Subscriber, error) {
	params := url.Values{"subscriber_id": []string{strconv.FormatInt(id, 10)}}

	resp, err := c.do(ctx, http.MethodGet, "/fb/subscriber/getInfo", params, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, nil
	}
	return decodeSubscriber(resp.Data)
}

func (c *Client) GetSubscriberByPhone(ctx context.Context, phone string) (*entity.Subscriber, error) {
	params := url.Values{"phone": []string{phone}}

	resp, err := c.do(ctx, http.MethodGet, "/fb/subscriber/findBySystemField", params, nil)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, nil
	}
	return decodeSubscriber(resp.Data)
}

// CreateOrUpdateSubscriber upserta por teléfono. El alta/update lleva los
// custom fields en la misma llamada; los tags van después de a uno, y si un
// tag falla los anteriores quedan aplicados (se loguea, no se reintenta acá).
func (c *Client) CreateOrUpdateSubscriber(ctx context.Context, in UpsertInput) (*entity.Subscriber, error) {
	existing, err := c.GetSubscriberByPhone(ctx, in.Phone)
	if err != nil {
		return nil, err
	}

	var sub *entity.Subscriber
	if existing != nil {
		sub, err = c.updateSubscriber(ctx, existing.ID, in)
	} else {
		sub, err = c.createSubscriber(ctx, in)
	}
	if err != nil {
		return nil, err
	}

	for _, tag := range in.Tags {
		ok, tagErr := c.AddTagToSubscriber(ctx, sub.ID, tag)
		if tagErr != nil || !ok {
			log.Printf("⚠️ Manychat: no se pudo aplicar tag %q al subscriber %d: %v", tag, sub.ID, tagErr)
		}
	}

	return sub, nil
}

func (c *Client) createSubscriber(ctx context.Context, in UpsertInput) (*entity.Subscriber, error) {
	body := createSubscriberRequest{
		Phone:        in.Phone,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		CustomFields: in.CustomFields,
		HasOptInSMS:  true,
	}

	resp, err := c.do(ctx, http.MethodPost, "/fb/subscriber/createSubscriber", nil, body)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, fmt.Errorf("manychat rechazó el alta de subscriber: %s", resp.Message)
	}
	return decodeSubscriber(resp.Data)
}

func (c *Client) updateSubscriber(ctx context.Context, id int64, in UpsertInput) (*entity.Subscriber, error) {
	body := updateSubscriberRequest{
		SubscriberID: id,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		CustomFields: in.CustomFields,
	}

	resp, err := c.do(ctx, http.MethodPost, "/fb/subscriber/updateSubscriber", nil, body)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, fmt.Errorf("manychat rechazó la actualización del subscriber %d: %s", id, resp.Message)
	}
	return decodeSubscriber(resp.Data)
}

// AddTagToSubscriber devuelve false (sin error) si la plataforma declinó;
// error solo ante fallas de transporte.
func (c *Client) AddTagToSubscriber(ctx context.Context, id int64, tag string) (bool, error) {
	return c.boolCall(ctx, "/fb/subscriber/addTagByName", tagRequest{SubscriberID: id, TagName: tag})
}

func (c *Client) RemoveTagFromSubscriber(ctx context.Context, id int64, tag string) (bool, error) {
	return c.boolCall(ctx, "/fb/subscriber/removeTagByName", tagRequest{SubscriberID: id, TagName: tag})
}

func (c *Client) SetCustomField(ctx context.Context, id int64, name string, value interface{}) (bool, error) {
	return c.boolCall(ctx, "/fb/subscriber/setCustomFieldByName", customFieldRequest{
		SubscriberID: id,
		FieldName:    name,
		FieldValue:   value,
	})
}

func (c *Client) SendTextMessage(ctx context.Context, id int64, text string) (bool, error) {
	body := sendContentRequest{
		SubscriberID: id,
		Data: contentData{
			Version: "v2",
			Content: contentBody{
				Messages: []contentMessage{{Type: "text", Text: text}},
			},
		},
	}
	return c.boolCall(ctx, "/fb/sending/sendContent", body)
}

func (c *Client) boolCall(ctx context.Context, path string, body interface{}) (bool, error) {
	resp, err := c.do(ctx, http.MethodPost, path, nil, body)
	if err != nil {
		return false, err
	}
	if !resp.ok() {
		log.Printf("⚠️ Manychat declinó %s: %s", path, resp.Message)
		return false, nil
	}
	return true, nil
}

// do encola el request y espera el resultado. Un caller que abandona (ctx
// cancelado) no frena la llamada ya encolada; solo deja de esperarla.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body interface{}) (*apiResponse, error) {
	type result struct {
		resp *apiResponse
		err  error
	}

	ch := make(chan result, 1)
	err := c.queue.submit(func() {
		resp, sendErr := c.send(method, path, params, body)
		ch <- result{resp, sendErr}
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) send(method, path string, params url.Values, body interface{}) (*apiResponse, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error al serializar payload manychat: %w", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error de conexión con manychat: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, fmt.Errorf("manychat rechazó las credenciales (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("manychat respondió %d: %s", resp.StatusCode, string(respBody))
	}

	var api apiResponse
	if err := json.Unmarshal(respBody, &api); err != nil {
		return nil, fmt.Errorf("respuesta manychat no parseable (status %d): %w", resp.StatusCode, err)
	}
	return &api, nil
}

func decodeSubscriber(data json.RawMessage) (*entity.Subscriber, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var dto subscriberDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("subscriber manychat no parseable: %w", err)
	}
	return dto.toEntity(), nil
}
