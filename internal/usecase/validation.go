package usecase

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/credinor/crm-backend/internal/entity"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CreateLeadInput es el payload crudo del alta de lead vía API
type CreateLeadInput struct {
	Name         string                 `json:"nombre"`
	Phone        string                 `json:"telefono"`
	Email        string                 `json:"email"`
	DNI          string                 `json:"dni"`
	Income       float64                `json:"ingresos"`
	Zone         string                 `json:"zona"`
	Product      string                 `json:"producto"`
	Amount       float64                `json:"monto"`
	Source       string                 `json:"origen"`
	State        string                 `json:"estado"`
	Agency       string                 `json:"agencia"`
	Notes        string                 `json:"notas"`
	Tags         []string               `json:"etiquetas"`
	CustomFields map[string]interface{} `json:"campos_extra"`
}

func ValidateCreateLeadInput(input CreateLeadInput) []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(input.Name) == "" {
		errors = append(errors, ValidationError{"nombre", "es obligatorio"})
	} else if len(input.Name) < 2 {
		errors = append(errors, ValidationError{"nombre", "debe tener al menos 2 caracteres"})
	} else if len(input.Name) > 200 {
		errors = append(errors, ValidationError{"nombre", "no puede superar 200 caracteres"})
	}

	if strings.TrimSpace(input.Phone) == "" {
		errors = append(errors, ValidationError{"telefono", "es obligatorio"})
	} else if !isValidPhoneNumber(input.Phone) {
		errors = append(errors, ValidationError{"telefono", "debe ser un teléfono válido"})
	}

	if input.Email != "" {
		if _, err := mail.ParseAddress(input.Email); err != nil {
			errors = append(errors, ValidationError{"email", "es inválido"})
		}
	}

	if input.DNI != "" && !isValidDNI(input.DNI) {
		errors = append(errors, ValidationError{"dni", "debe tener 7 u 8 dígitos"})
	}

	if input.Income < 0 {
		errors = append(errors, ValidationError{"ingresos", "no puede ser negativo"})
	}
	if input.Amount < 0 {
		errors = append(errors, ValidationError{"monto", "no puede ser negativo"})
	}

	if input.State != "" && !entity.IsValidState(input.State) {
		errors = append(errors, ValidationError{"estado", fmt.Sprintf("debe ser uno de %s", strings.Join(entity.ValidStates, ", "))})
	}

	return errors
}

// ValidateLeadChanges valida un PATCH parcial: solo chequea los campos presentes
func ValidateLeadChanges(changes map[string]interface{}) []ValidationError {
	var errors []ValidationError

	if v, ok := changes["nombre"].(string); ok && strings.TrimSpace(v) == "" {
		errors = append(errors, ValidationError{"nombre", "no puede quedar vacío"})
	}
	if v, ok := changes["telefono"].(string); ok && !isValidPhoneNumber(v) {
		errors = append(errors, ValidationError{"telefono", "debe ser un teléfono válido"})
	}
	if v, ok := changes["email"].(string); ok && v != "" {
		if _, err := mail.ParseAddress(v); err != nil {
			errors = append(errors, ValidationError{"email", "es inválido"})
		}
	}
	if v, ok := changes["dni"].(string); ok && v != "" && !isValidDNI(v) {
		errors = append(errors, ValidationError{"dni", "debe tener 7 u 8 dígitos"})
	}
	if v, ok := changes["estado"].(string); ok && !entity.IsValidState(v) {
		errors = append(errors, ValidationError{"estado", fmt.Sprintf("debe ser uno de %s", strings.Join(entity.ValidStates, ", "))})
	}

	return errors
}

func isValidPhoneNumber(phone string) bool {
	cleaned := regexp.MustCompile(`\D`).ReplaceAllString(phone, "")

	// 10 dígitos locales hasta 13 con prefijo internacional (549...)
	return len(cleaned) >= 10 && len(cleaned) <= 13
}

func isValidDNI(dni string) bool {
	cleaned := regexp.MustCompile(`\D`).ReplaceAllString(dni, "")
	return len(cleaned) == 7 || len(cleaned) == 8
}
