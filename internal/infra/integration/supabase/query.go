package supabase

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/credinor/crm-backend/internal/entity"
)

// columnas por las que se puede ordenar el listado
var sortableColumns = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"nombre":     true,
	"ingresos":   true,
	"monto":      true,
	"estado":     true,
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// buildFilterParams traduce los filtros a operadores PostgREST. La misma
// función arma el query de página y el de conteo: el predicado tiene que ser
// idéntico en los dos.
func buildFilterParams(f entity.LeadFilters) url.Values {
	params := url.Values{}

	if f.State != "" {
		params.Add("estado", "eq."+f.State)
	}
	if f.Source != "" {
		params.Add("origen", "eq."+f.Source)
	}
	if f.Zone != "" {
		params.Add("zona", "eq."+f.Zone)
	}
	if f.IncomeMin != nil {
		params.Add("ingresos", fmt.Sprintf("gte.%g", *f.IncomeMin))
	}
	if f.IncomeMax != nil {
		params.Add("ingresos", fmt.Sprintf("lte.%g", *f.IncomeMax))
	}
	if f.CreatedFrom != nil {
		params.Add("created_at", "gte."+startOfDay(*f.CreatedFrom).Format(time.RFC3339))
	}
	if f.CreatedTo != nil {
		params.Add("created_at", "lte."+endOfDay(*f.CreatedTo).Format(time.RFC3339))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		needle := "*" + q + "*"
		ors := []string{
			"nombre.ilike." + needle,
			"telefono.ilike." + needle,
			"email.ilike." + needle,
			"dni.ilike." + needle,
		}
		params.Add("or", "("+strings.Join(ors, ",")+")")
	}

	return params
}

func buildPageParams(f entity.LeadFilters) url.Values {
	params := buildFilterParams(f)
	params.Add("select", "*")

	col := f.SortBy
	if !sortableColumns[col] {
		col = "created_at"
	}
	dir := "asc"
	// sin orden explícito: más recientes primero
	if f.SortDesc || f.SortBy == "" {
		dir = "desc"
	}
	params.Add("order", col+"."+dir)

	params.Add("limit", fmt.Sprintf("%d", pageSize(f)))
	params.Add("offset", fmt.Sprintf("%d", f.Offset))

	return params
}

func pageSize(f entity.LeadFilters) int {
	if f.Limit <= 0 {
		return defaultPageSize
	}
	if f.Limit > maxPageSize {
		return maxPageSize
	}
	return f.Limit
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, t.Location())
}

// matchesFilters replica en memoria el mismo predicado que buildFilterParams,
// para el camino de fallback. Misma semántica: igualdad exacta, rangos
// inclusivos y búsqueda substring case-insensitive sobre los mismos campos.
func matchesFilters(l entity.Lead, f entity.LeadFilters) bool {
	if f.State != "" && l.State != f.State {
		return false
	}
	if f.Source != "" && l.Source != f.Source {
		return false
	}
	if f.Zone != "" && l.Zone != f.Zone {
		return false
	}
	if f.IncomeMin != nil && l.Income < *f.IncomeMin {
		return false
	}
	if f.IncomeMax != nil && l.Income > *f.IncomeMax {
		return false
	}
	if f.CreatedFrom != nil && l.CreatedAt.Before(startOfDay(*f.CreatedFrom)) {
		return false
	}
	if f.CreatedTo != nil && l.CreatedAt.After(endOfDay(*f.CreatedTo)) {
		return false
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		needle := strings.ToLower(q)
		hay := l.Name != "" && strings.Contains(strings.ToLower(l.Name), needle)
		hay = hay || strings.Contains(strings.ToLower(l.Phone), needle)
		hay = hay || (l.Email != "" && strings.Contains(strings.ToLower(l.Email), needle))
		hay = hay || (l.DNI != "" && strings.Contains(strings.ToLower(l.DNI), needle))
		if !hay {
			return false
		}
	}
	return true
}

func sortLeads(leads []entity.Lead, f entity.LeadFilters) {
	col := f.SortBy
	if !sortableColumns[col] {
		col = "created_at"
	}
	desc := f.SortDesc || f.SortBy == ""

	sort.SliceStable(leads, func(i, j int) bool {
		a, b := leads[i], leads[j]
		var less bool
		switch col {
		case "nombre":
			less = strings.ToLower(a.Name) < strings.ToLower(b.Name)
		case "ingresos":
			less = a.Income < b.Income
		case "monto":
			less = a.Amount < b.Amount
		case "estado":
			less = a.State < b.State
		case "updated_at":
			less = a.UpdatedAt.Before(b.UpdatedAt)
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if desc {
			return !less && !equalByColumn(a, b, col)
		}
		return less
	})
}

func equalByColumn(a, b entity.Lead, col string) bool {
	switch col {
	case "nombre":
		return strings.EqualFold(a.Name, b.Name)
	case "ingresos":
		return a.Income == b.Income
	case "monto":
		return a.Amount == b.Amount
	case "estado":
		return a.State == b.State
	case "updated_at":
		return a.UpdatedAt.Equal(b.UpdatedAt)
	default:
		return a.CreatedAt.Equal(b.CreatedAt)
	}
}
