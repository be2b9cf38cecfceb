package llm

import "errors"

var (
	ErrNotConfigured = errors.New("llm provider not configured")
	ErrUnavailable   = errors.New("llm service unavailable")
	ErrMalformed     = errors.New("llm returned a malformed answer")
)
