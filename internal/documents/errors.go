package documents

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/manifest/pkg/storage"
)

// Domain errors for document operations.
var (
	ErrNotFound          = errors.New("document not found")
	ErrLineNotFound      = errors.New("line item not found")
	ErrDuplicate         = errors.New("document already exists")
	ErrFileTooLarge      = errors.New("file exceeds maximum upload size")
	ErrInvalidFile       = errors.New("invalid file")
	ErrUnsupportedType   = errors.New("unsupported content type")
	ErrInvalidStatus     = errors.New("invalid status transition")
	ErrInvalidCorrection = errors.New("invalid correction")
	ErrStaleCorrection   = errors.New("line category changed since it was reviewed")
)

// MapHTTPStatus maps document domain errors to appropriate HTTP status codes.
// Errors outside the document domain fall back to the blob store mapping.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrLineNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrStaleCorrection), errors.Is(err, ErrInvalidStatus):
		return http.StatusConflict
	case errors.Is(err, ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrInvalidFile), errors.Is(err, ErrInvalidCorrection):
		return http.StatusBadRequest
	default:
		return storage.MapHTTPStatus(err)
	}
}
