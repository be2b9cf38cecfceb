package extraction

import (
	"errors"
	"fmt"
)

// ErrExtractionFailed is wrapped by every *Error.
var ErrExtractionFailed = errors.New("extraction failed")

// Code classifies an extraction failure.
type Code string

const (
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeNetworkError      Code = "NETWORK_ERROR"
	CodeServiceError      Code = "SERVICE_ERROR"
	CodeTimeout           Code = "TIMEOUT"
	CodeUnsupportedFormat Code = "UNSUPPORTED_FORMAT"
	CodeFileTooLarge      Code = "FILE_TOO_LARGE"
	CodeUnknown           Code = "UNKNOWN_ERROR"
)

// Retryable reports whether a failure with this code may succeed on another attempt.
func (c Code) Retryable() bool {
	switch c {
	case CodeInvalidInput, CodeUnsupportedFormat, CodeFileTooLarge:
		return false
	}
	return true
}

// Error is a terminal extraction failure for one document.
type Error struct {
	Code     Code
	Message  string
	Attempts int
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction %s after %d attempt(s): %s", e.Code, e.Attempts, e.Message)
}

func (e *Error) Unwrap() error {
	return ErrExtractionFailed
}

// Retryable reports whether the failure's code is retryable.
func (e *Error) Retryable() bool {
	return e.Code.Retryable()
}
