package usecase

import (
	"fmt"
	"strings"

	"github.com/credinor/crm-backend/internal/entity"
)

// Mapeo cerrado entre custom fields de Manychat y columnas del lead. Un campo
// que no figura acá se ignora: nada de volcar claves arbitrarias sobre el lead.
var customFieldColumns = map[string]string{
	"dni":      "dni",
	"ingresos": "ingresos",
	"zona":     "zona",
	"producto": "producto",
	"monto":    "monto",
	"origen":   "origen",
	"estado":   "estado",
	"agencia":  "agencia",
	"notas":    "notas",
	"email":    "email",
}

// leadCustomFields arma los custom fields a empujar a Manychat desde un lead.
// Es el inverso del mapeo de arriba, siempre sobre el mismo set cerrado.
func leadCustomFields(l *entity.Lead) map[string]interface{} {
	fields := map[string]interface{}{}

	if l.DNI != "" {
		fields["dni"] = l.DNI
	}
	if l.Income > 0 {
		fields["ingresos"] = l.Income
	}
	if l.Zone != "" {
		fields["zona"] = l.Zone
	}
	if l.Product != "" {
		fields["producto"] = l.Product
	}
	if l.Amount > 0 {
		fields["monto"] = l.Amount
	}
	if l.Source != "" {
		fields["origen"] = l.Source
	}
	if l.State != "" {
		fields["estado"] = l.State
	}
	if l.Agency != "" {
		fields["agencia"] = l.Agency
	}
	if l.Notes != "" {
		fields["notas"] = l.Notes
	}

	return fields
}

// subscriberToChanges traduce un subscriber a un PATCH parcial del lead.
// Los custom fields pisan los campos de negocio; los tags se serializan tal
// cual; nombre/email solo si vienen con valor.
func subscriberToChanges(sub *entity.Subscriber) map[string]interface{} {
	changes := map[string]interface{}{}

	if name := strings.TrimSpace(sub.FullName()); name != "" {
		changes["nombre"] = name
	}
	if sub.Email != "" {
		changes["email"] = sub.Email
	}
	if sub.Phone != "" {
		changes["telefono"] = sub.Phone
	}

	for name, value := range sub.CustomFields {
		col, known := customFieldColumns[strings.ToLower(name)]
		if !known {
			continue
		}
		switch col {
		case "ingresos", "monto":
			if n, ok := toNumber(value); ok {
				changes[col] = n
			}
		case "estado":
			if s, ok := value.(string); ok && entity.IsValidState(s) {
				changes[col] = s
			}
		default:
			changes[col] = fmt.Sprintf("%v", value)
		}
	}

	if len(sub.Tags) > 0 {
		changes["etiquetas"] = sub.Tags
	}

	return changes
}

func toNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(strings.TrimSpace(n), "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// splitName separa nombre y apellido en el primer espacio
func splitName(full string) (first, last string) {
	full = strings.TrimSpace(full)
	if idx := strings.IndexAny(full, " \t"); idx >= 0 {
		return full[:idx], strings.TrimSpace(full[idx+1:])
	}
	return full, ""
}
