package schoology

import (
	"fmt"

	"github.com/nkiryanov/schoolauth/internal/apperrors"
)

// Outcome codes of failed Schoology calls
const (
	CodeUnauthorized = "unauthorized"
	CodeTransport    = "transport"
	CodeMalformed    = "malformed"
	CodeOther        = "other"
)

// Error returned by every failed Schoology call
// errors.Is matches it with the apperrors sentinel of its code
type Error struct {
	Code string

	// HTTP status of the response, zero if no response was received
	StatusCode int
	Err        error
}

func NewError(code string, statusCode int, err error) *Error {
	return &Error{Code: code, StatusCode: statusCode, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("schoology: code: %s, status: %d, error: %v", e.Code, e.StatusCode, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Code {
	case CodeUnauthorized:
		return apperrors.ErrRemoteUnauthorized
	case CodeTransport:
		return apperrors.ErrRemoteTransport
	case CodeMalformed:
		return apperrors.ErrMalformedResponse
	default:
		return apperrors.ErrRemoteOther
	}
}
