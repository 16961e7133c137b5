package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/credinor/crm-backend/internal/entity"
	"github.com/credinor/crm-backend/internal/infra/integration/supabase"
	"github.com/credinor/crm-backend/internal/usecase"
)

type LeadHandler struct {
	Store *supabase.Client
	Sync  *usecase.SyncService
}

func NewLeadHandler(store *supabase.Client, sync *usecase.SyncService) *LeadHandler {
	return &LeadHandler{
		Store: store,
		Sync:  sync,
	}
}

type errorResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// List atiende GET /api/leads con filtros, orden y paginación por query string
func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	filters := parseLeadFilters(r)

	page, err := h.Store.GetLeads(r.Context(), filters)
	if err != nil {
		log.Printf("❌ Error al listar leads: %v", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "No se pudieron obtener los leads"})
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (h *LeadHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lead, err := h.Store.GetLeadByID(r.Context(), id)
	if err != nil {
		log.Printf("❌ Error al buscar lead %s: %v", id, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "No se pudo obtener el lead"})
		return
	}
	if lead == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Message: "Lead no encontrado"})
		return
	}

	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input usecase.CreateLeadInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "JSON inválido"})
		return
	}

	if errs := usecase.ValidateCreateLeadInput(input); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "Datos inválidos", Errors: errs})
		return
	}

	lead := &entity.Lead{
		Name:         input.Name,
		Phone:        input.Phone,
		Email:        input.Email,
		DNI:          input.DNI,
		Income:       input.Income,
		Zone:         input.Zone,
		Product:      input.Product,
		Amount:       input.Amount,
		Source:       input.Source,
		State:        input.State,
		Agency:       input.Agency,
		Notes:        input.Notes,
		Tags:         input.Tags,
		CustomFields: input.CustomFields,
	}

	created, err := h.Store.CreateLead(r.Context(), lead)
	if err != nil {
		log.Printf("❌ Error al crear lead: %v", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "No se pudo crear el lead"})
		return
	}

	// el alta responde ya; el sync con Manychat corre aparte y queda en sync_logs
	go h.Sync.SyncLeadToManychat(newDetachedContext(r), created.ID)

	writeJSON(w, http.StatusCreated, created)
}

func (h *LeadHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var changes map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&changes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "JSON inválido"})
		return
	}
	if len(changes) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Nada para actualizar"})
		return
	}

	if errs := usecase.ValidateLeadChanges(changes); len(errs) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Message: "Datos inválidos", Errors: errs})
		return
	}

	lead, err := h.Store.UpdateLead(r.Context(), id, changes)
	if err != nil {
		if errors.Is(err, entity.ErrLeadNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Message: "Lead no encontrado"})
			return
		}
		log.Printf("❌ Error al actualizar lead %s: %v", id, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "No se pudo actualizar el lead"})
		return
	}

	writeJSON(w, http.StatusOK, lead)
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.Store.DeleteLead(r.Context(), id); err != nil {
		log.Printf("❌ Error al borrar lead %s: %v", id, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "No se pudo borrar el lead"})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *LeadHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	events, err := h.Store.GetLeadEvents(r.Context(), id)
	if err != nil {
		log.Printf("❌ Error al buscar eventos del lead %s: %v", id, err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Message: "No se pudieron obtener los eventos"})
		return
	}

	writeJSON(w, http.StatusOK, events)
}

// newDetachedContext conserva los valores del request pero no su cancelación:
// el sync en background no debe morir cuando el cliente corta la conexión
func newDetachedContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func parseLeadFilters(r *http.Request) entity.LeadFilters {
	q := r.URL.Query()

	f := entity.LeadFilters{
		State:    q.Get("estado"),
		Source:   q.Get("origen"),
		Zone:     q.Get("zona"),
		Search:   q.Get("q"),
		SortBy:   q.Get("sort"),
		SortDesc: q.Get("dir") == "desc",
	}

	if v, err := strconv.ParseFloat(q.Get("ingresos_min"), 64); err == nil {
		f.IncomeMin = &v
	}
	if v, err := strconv.ParseFloat(q.Get("ingresos_max"), 64); err == nil {
		f.IncomeMax = &v
	}
	if t, err := time.Parse("2006-01-02", q.Get("desde")); err == nil {
		f.CreatedFrom = &t
	}
	if t, err := time.Parse("2006-01-02", q.Get("hasta")); err == nil {
		f.CreatedTo = &t
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = v
	}

	return f
}
