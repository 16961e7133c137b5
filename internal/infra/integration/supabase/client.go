package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/credinor/crm-backend/internal/cache"
	"github.com/credinor/crm-backend/internal/entity"
)

// Client habla con el backend de leads vía PostgREST (Supabase).
// Los listados van cacheados por la estrategia "leads"; toda mutación dispara
// el hook de invalidación que corresponda.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	cache   *cache.Service
}

func NewClient(baseURL, apiKey string, cacheSvc *cache.Service) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   cacheSvc,
	}
}

// GetLeads devuelve una página de leads más el total bajo el mismo filtro.
// Camino primario: query filtrado + query de conteo. Si cualquiera de los dos
// falla, cae al fallback: traer todo y filtrar en memoria con la misma
// semántica. Si el fallback también falla, sube el error original.
func (c *Client) GetLeads(ctx context.Context, f entity.LeadFilters) (*entity.LeadPage, error) {
	if c.cache == nil {
		return c.fetchLeads(ctx, f)
	}

	v, err := c.cache.GetOrSetWith(ctx, cache.StrategyLeads, f, func(ctx context.Context) (interface{}, error) {
		return c.fetchLeads(ctx, f)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.LeadPage), nil
}

func (c *Client) fetchLeads(ctx context.Context, f entity.LeadFilters) (*entity.LeadPage, error) {
	page, primaryErr := c.fetchLeadsPrimary(ctx, f)
	if primaryErr == nil {
		return page, nil
	}

	log.Printf("⚠️ Supabase: query optimizado falló (%v), usando fallback en memoria", primaryErr)

	page, fbErr := c.fetchLeadsFallback(ctx, f)
	if fbErr != nil {
		// el fallback existe por resiliencia; si tampoco anda, el error útil es el original
		return nil, primaryErr
	}
	return page, nil
}

func (c *Client) fetchLeadsPrimary(ctx context.Context, f entity.LeadFilters) (*entity.LeadPage, error) {
	var leads []entity.Lead
	if err := c.getJSON(ctx, "/rest/v1/leads", buildPageParams(f), nil, &leads); err != nil {
		return nil, err
	}

	total, err := c.countLeads(ctx, f)
	if err != nil {
		return nil, err
	}

	return &entity.LeadPage{Leads: leads, Total: total}, nil
}

// countLeads pide solo el total exacto bajo el mismo predicado que la página
func (c *Client) countLeads(ctx context.Context, f entity.LeadFilters) (int, error) {
	params := buildFilterParams(f)
	params.Add("select", "id")

	headers := map[string]string{
		"Prefer": "count=exact",
		"Range":  "0-0",
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/rest/v1/leads", params, headers, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

func (c *Client) fetchLeadsFallback(ctx context.Context, f entity.LeadFilters) (*entity.LeadPage, error) {
	params := url.Values{}
	params.Add("select", "*")

	var all []entity.Lead
	if err := c.getJSON(ctx, "/rest/v1/leads", params, nil, &all); err != nil {
		return nil, err
	}

	filtered := make([]entity.Lead, 0, len(all))
	for _, l := range all {
		if matchesFilters(l, f) {
			filtered = append(filtered, l)
		}
	}
	sortLeads(filtered, f)

	total := len(filtered)
	limit := pageSize(f)
	start := f.Offset
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &entity.LeadPage{Leads: filtered[start:end], Total: total}, nil
}

func (c *Client) CreateLead(ctx context.Context, lead *entity.Lead) (*entity.Lead, error) {
	now := time.Now().UTC()
	payload := leadPayload(lead)
	if lead.State == "" {
		payload["estado"] = entity.StateNew
	}
	payload["created_at"] = now.Format(time.RFC3339)
	payload["updated_at"] = now.Format(time.RFC3339)

	var rows []entity.Lead
	headers := map[string]string{"Prefer": "return=representation"}
	if err := c.sendJSON(ctx, http.MethodPost, "/rest/v1/leads", nil, headers, []interface{}{payload}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("supabase no devolvió el lead creado")
	}

	if c.cache != nil {
		c.cache.OnLeadChange()
	}
	return &rows[0], nil
}

// GetLeadByID devuelve nil (sin error) cuando no hay fila. El detalle se
// cachea bajo la estrategia leadDetail; OnSpecificLeadChange lo limpia.
func (c *Client) GetLeadByID(ctx context.Context, id string) (*entity.Lead, error) {
	fetch := func(ctx context.Context) (interface{}, error) {
		lead, err := c.findOne(ctx, url.Values{"id": []string{"eq." + id}})
		return lead, err
	}

	if c.cache == nil {
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return v.(*entity.Lead), nil
	}

	v, err := c.cache.GetOrSetWith(ctx, cache.StrategyLeadDetail, id, fetch)
	if err != nil {
		return nil, err
	}
	return v.(*entity.Lead), nil
}

func (c *Client) FindLeadByPhone(ctx context.Context, phone string) (*entity.Lead, error) {
	return c.findOne(ctx, url.Values{"telefono": []string{"eq." + phone}})
}

func (c *Client) FindLeadByManychatID(ctx context.Context, manychatID int64) (*entity.Lead, error) {
	return c.findOne(ctx, url.Values{"manychat_id": []string{"eq." + strconv.FormatInt(manychatID, 10)}})
}

func (c *Client) findOne(ctx context.Context, filter url.Values) (*entity.Lead, error) {
	params := url.Values{}
	for k, vs := range filter {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	params.Add("select", "*")
	params.Add("limit", "1")

	var rows []entity.Lead
	if err := c.getJSON(ctx, "/rest/v1/leads", params, nil, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpdateLead aplica un PATCH parcial. Los valores nil y los strings vacíos se
// descartan antes de escribir. Devuelve ErrLeadNotFound si la fila no existe.
func (c *Client) UpdateLead(ctx context.Context, id string, changes map[string]interface{}) (*entity.Lead, error) {
	payload := stripEmpty(changes)
	payload["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	params := url.Values{"id": []string{"eq." + id}}
	headers := map[string]string{"Prefer": "return=representation"}

	var rows []entity.Lead
	if err := c.sendJSON(ctx, http.MethodPatch, "/rest/v1/leads", params, headers, payload, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, entity.ErrLeadNotFound
	}

	if c.cache != nil {
		c.cache.OnSpecificLeadChange(id)
		if _, ok := payload["estado"]; ok {
			c.cache.OnPipelineChange()
		}
	}
	return &rows[0], nil
}

func (c *Client) DeleteLead(ctx context.Context, id string) error {
	params := url.Values{"id": []string{"eq." + id}}

	resp, err := c.doRequest(ctx, http.MethodDelete, "/rest/v1/leads", params, nil, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if c.cache != nil {
		c.cache.OnLeadChange()
	}
	return nil
}

func (c *Client) GetLeadEvents(ctx context.Context, leadID string) ([]entity.LeadEvent, error) {
	params := url.Values{}
	params.Add("lead_id", "eq."+leadID)
	params.Add("select", "*")
	params.Add("order", "created_at.desc")

	var events []entity.LeadEvent
	if err := c.getJSON(ctx, "/rest/v1/lead_events", params, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// --- plomería HTTP ---

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, headers map[string]string, out interface{}) error {
	resp, err := c.doRequest(ctx, http.MethodGet, path, params, headers, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, params url.Values, headers map[string]string, body, out interface{}) error {
	resp, err := c.doRequest(ctx, method, path, params, headers, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values, headers map[string]string, body interface{}) (*http.Response, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error al serializar payload: %w", err)
		}
		reader = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error de conexión con supabase: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("supabase respondió %d: %s", resp.StatusCode, string(respBody))
	}

	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "CredinorCRM/1.0")
}

// leadPayload arma el cuerpo de inserción descartando campos vacíos
func leadPayload(l *entity.Lead) map[string]interface{} {
	raw := map[string]interface{}{
		"nombre":   l.Name,
		"telefono": l.Phone,
		"email":    l.Email,
		"dni":      l.DNI,
		"zona":     l.Zone,
		"producto": l.Product,
		"origen":   l.Source,
		"estado":   l.State,
		"agencia":  l.Agency,
		"notas":    l.Notes,
	}
	if l.Income > 0 {
		raw["ingresos"] = l.Income
	}
	if l.Amount > 0 {
		raw["monto"] = l.Amount
	}
	if l.ManychatID != nil {
		raw["manychat_id"] = *l.ManychatID
	}
	if len(l.Tags) > 0 {
		raw["etiquetas"] = l.Tags
	}
	if len(l.CustomFields) > 0 {
		raw["campos_extra"] = l.CustomFields
	}
	return stripEmpty(raw)
}

// stripEmpty descarta nils y strings vacíos antes de escribir
func stripEmpty(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok && s == "" {
			continue
		}
		out[k] = v
	}
	return out
}

// parseContentRangeTotal saca el total de un header "0-49/123" o "*/123"
func parseContentRangeTotal(header string) (int, error) {
	idx := strings.LastIndex(header, "/")
	if idx < 0 {
		return 0, fmt.Errorf("header Content-Range inválido: %q", header)
	}
	totalPart := header[idx+1:]
	if totalPart == "*" {
		return 0, fmt.Errorf("supabase no devolvió conteo exacto: %q", header)
	}
	return strconv.Atoi(totalPart)
}
