package entity

import (
	"time"
)

// Estados posibles de un lead en el pipeline comercial
const (
	StateNew         = "NEW"
	StateInReview    = "IN_REVIEW"
	StatePreApproved = "PRE_APPROVED"
	StateRejected    = "REJECTED"
	StateDocPending  = "DOC_PENDING"
	StateReferred    = "REFERRED"
)

// ValidStates en el orden del pipeline
var ValidStates = []string{
	StateNew, StateInReview, StatePreApproved,
	StateRejected, StateDocPending, StateReferred,
}

func IsValidState(s string) bool {
	for _, v := range ValidStates {
		if v == s {
			return true
		}
	}
	return false
}

type Lead struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"nombre"`
	Phone        string                 `json:"telefono"` // clave de matcheo con Manychat cuando no hay manychat_id
	Email        string                 `json:"email,omitempty"`
	DNI          string                 `json:"dni,omitempty"`
	Income       float64                `json:"ingresos,omitempty"`
	Zone         string                 `json:"zona,omitempty"`
	Product      string                 `json:"producto,omitempty"`
	Amount       float64                `json:"monto,omitempty"`
	Source       string                 `json:"origen,omitempty"`
	State        string                 `json:"estado"`
	Agency       string                 `json:"agencia,omitempty"`
	Notes        string                 `json:"notas,omitempty"`
	Tags         []string               `json:"etiquetas,omitempty"`
	CustomFields map[string]interface{} `json:"campos_extra,omitempty"`
	ManychatID   *int64                 `json:"manychat_id,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// LeadEvent es una entrada del historial de un lead (cambios de estado, notas, etc)
type LeadEvent struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Type      string    `json:"tipo"`
	Detail    string    `json:"detalle,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// LeadFilters arma el predicado de búsqueda del listado de leads.
// Search matchea substring case-insensitive contra nombre, teléfono, email y DNI.
type LeadFilters struct {
	State       string     `json:"estado,omitempty"`
	Source      string     `json:"origen,omitempty"`
	Zone        string     `json:"zona,omitempty"`
	IncomeMin   *float64   `json:"ingresos_min,omitempty"`
	IncomeMax   *float64   `json:"ingresos_max,omitempty"`
	CreatedFrom *time.Time `json:"creado_desde,omitempty"`
	CreatedTo   *time.Time `json:"creado_hasta,omitempty"`
	Search      string     `json:"buscar,omitempty"`
	SortBy      string     `json:"ordenar_por,omitempty"`
	SortDesc    bool       `json:"desc,omitempty"`
	Limit       int        `json:"limit,omitempty"`
	Offset      int        `json:"offset,omitempty"`
}

// LeadPage es una página del listado más el total bajo el mismo filtro
type LeadPage struct {
	Leads []Lead `json:"leads"`
	Total int    `json:"total"`
}
