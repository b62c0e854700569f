package apperr

import (
	"errors"
	"net/http"
)

// Error kinds shared by the stores, the HTTP handlers and the socket gateway.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
)

// Codes carried by socket error events.
const (
	CodeNotFound   = "NotFound"
	CodeForbidden  = "Forbidden"
	CodeValidation = "ValidationFailed"
	CodeInternal   = "Internal"
)

// Status maps an error to the HTTP status the handlers respond with.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code maps an error to its socket error code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeInternal
	}
}

// Message returns a message safe to show to clients. Internal errors are masked.
func Message(err error) string {
	if Code(err) == CodeInternal {
		return "internal error"
	}
	return err.Error()
}
