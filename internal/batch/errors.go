package batch

import (
	"errors"
	"net/http"
)

var (
	ErrBatchNotFound = errors.New("batch not found")
	ErrEmptyBatch    = errors.New("batch has no documents")
	ErrBatchTooLarge = errors.New("batch exceeds the maximum size")
	ErrFinished      = errors.New("batch already finished")
)

// MapHTTPStatus maps batch errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrEmptyBatch), errors.Is(err, ErrBatchTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ErrFinished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
