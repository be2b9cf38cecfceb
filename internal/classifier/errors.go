package classifier

import (
	"errors"
	"net/http"
)

var (
	// ErrLLMUnavailable means the LLM tier could not be reached. It is retryable.
	ErrLLMUnavailable = errors.New("llm classification service unavailable")
	// ErrClassificationFailed means the LLM tier answered with unusable data.
	ErrClassificationFailed = errors.New("classification failed")
	// ErrRuleStoreUnavailable means no rule snapshot could be loaded.
	ErrRuleStoreUnavailable = errors.New("rule store unavailable")
)

// Retryable reports whether a classification error may succeed on a later attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrLLMUnavailable)
}

// MapHTTPStatus maps classifier errors to HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrLLMUnavailable), errors.Is(err, ErrRuleStoreUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrClassificationFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
