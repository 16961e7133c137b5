package entity

import (
	"encoding/json"
	"time"
)

// Estado de un intento de sincronización. Un intento transiciona una sola vez:
// pending -> success o pending -> failed. No hay salida automática de failed.
const (
	SyncStatusPending = "pending"
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

const (
	SyncDirectionToManychat   = "to_manychat"
	SyncDirectionFromManychat = "from_manychat"
)

const (
	SyncTypeLead         = "lead"
	SyncTypeTags         = "tags"
	SyncTypeCustomFields = "custom_fields"
)

// SyncLogEntry registra un intento de sincronización entre un Lead y su
// Subscriber de Manychat, con conteo de reintentos para el pase de retry.
// LeadID es nullable: en la dirección from_manychat el lead todavía no se
// conoce al crear la entrada y se setea retroactivamente.
type SyncLogEntry struct {
	ID          string          `json:"id"`
	LeadID      *string         `json:"lead_id,omitempty"`
	Type        string          `json:"tipo"`
	Direction   string          `json:"direccion"`
	Status      string          `json:"estado"`
	RetryCount  int             `json:"reintentos"`
	Error       string          `json:"error,omitempty"`
	Snapshot    json.RawMessage `json:"snapshot,omitempty"` // datos intercambiados, para diagnóstico
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

func (e *SyncLogEntry) IsTerminal() bool {
	return e.Status == SyncStatusSuccess || e.Status == SyncStatusFailed
}
