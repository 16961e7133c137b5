package entity

import "errors"

var (
	ErrLeadNotFound    = errors.New("lead no encontrado")
	ErrInvalidLeadData = errors.New("datos de lead inválidos")
)
