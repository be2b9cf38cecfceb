package companies

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound       = errors.New("company not found")
	ErrDuplicate      = errors.New("company code already exists")
	ErrInvalidCompany = errors.New("invalid company")
)

// MapHTTPStatus maps company errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidCompany):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
