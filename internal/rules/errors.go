package rules

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound        = errors.New("rule not found")
	ErrMappingNotFound = errors.New("learned mapping not found")
	ErrDuplicate       = errors.New("an active rule with this kind, pattern, and scope already exists")
	ErrInvalidScope    = errors.New("company rules require a company id and universal rules must not have one")
	ErrInvalidRule     = errors.New("invalid rule")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInactive        = errors.New("rule is inactive")
	ErrUnavailable     = errors.New("rule store unavailable")
)

// MapHTTPStatus maps rule store errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrMappingNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrInactive):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidScope), errors.Is(err, ErrInvalidRule), errors.Is(err, ErrUnknownCategory):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
