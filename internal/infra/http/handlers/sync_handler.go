package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/credinor/crm-backend/internal/cache"
	"github.com/credinor/crm-backend/internal/usecase"
)

type SyncHandler struct {
	Sync  *usecase.SyncService
	Cache *cache.Service
}

func NewSyncHandler(sync *usecase.SyncService, c *cache.Service) *SyncHandler {
	return &SyncHandler{
		Sync:  sync,
		Cache: c,
	}
}

// SyncNow atiende POST /api/leads/{id}/sync: sincronización completa bloqueante
func (h *SyncHandler) SyncNow(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result := h.Sync.FullSyncLeadToManychat(r.Context(), id)

	status := http.StatusOK
	if !result.Ok {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, result)
}

// Retry atiende POST /api/sync/retry: un pase de reintentos sobre los fallidos
func (h *SyncHandler) Retry(w http.ResponseWriter, r *http.Request) {
	maxRetries, _ := strconv.Atoi(r.URL.Query().Get("max_retries"))

	recovered := h.Sync.RetryFailedSyncs(r.Context(), maxRetries)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"recuperados": recovered,
	})
}

// Logs atiende GET /api/sync/logs?lead_id=...&limit=...
func (h *SyncHandler) Logs(w http.ResponseWriter, r *http.Request) {
	leadID := r.URL.Query().Get("lead_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := h.Sync.GetSyncLogs(r.Context(), leadID, limit)
	if err != nil {
		status := http.StatusInternalServerError
		if usecase.IsDomainError(err) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Message: "No se pudieron obtener los logs"})
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// CacheStats atiende GET /api/cache/stats
func (h *SyncHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Cache.Store().Stats())
}

// CacheInvalidate atiende POST /api/cache/invalidate?tag=...
func (h *SyncHandler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	tag := r.URL.Query().Get("tag")
	if tag == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Message: "Falta el parámetro tag"})
		return
	}

	removed := h.Cache.InvalidateByTag(tag)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"removidas": removed,
	})
}
