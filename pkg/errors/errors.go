package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable codes synthesized locally, without a server round-trip.
const (
	CodeNetwork             = "network_error"
	CodeMissingRefreshToken = "missing_refresh_token"
	CodeMissingUser         = "missing_user"
	CodeInvalidInput        = "invalid_input"
)

// Standard sentinel errors for common cases.
var (
	ErrNetwork             = errors.New("network error")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("resource not found")
	ErrConflict            = errors.New("conflict")
	ErrServer              = errors.New("server error")
	ErrMissingRefreshToken = errors.New("missing refresh token")
	ErrMissingUser         = errors.New("missing user")
)

// APIError is the single error shape surfaced to callers of the client. Status
// is 0 when no HTTP response was received.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	// Payload is the raw response body, kept for UI-level message translation.
	Payload []byte `json:"-"`
	Err     error  `json:"-"`
}

func (e *APIError) Error() string {
	label := e.Code
	if label == "" {
		label = fmt.Sprintf("status %d", e.Status)
	}
	if e.Err != nil && !isSentinel(e.Err) {
		return fmt.Sprintf("%s: %s: %v", label, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", label, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match an APIError against the sentinel implied by its
// status, even when Err carries a different cause.
func (e *APIError) Is(target error) bool {
	if target == ErrNetwork {
		return e.Code == CodeNetwork
	}
	return target != nil && target == sentinelFor(e.Status)
}

func isSentinel(err error) bool {
	switch err {
	case ErrNetwork, ErrInvalidInput, ErrUnauthorized, ErrForbidden, ErrNotFound,
		ErrConflict, ErrServer, ErrMissingRefreshToken, ErrMissingUser:
		return true
	}
	return false
}

func sentinelFor(status int) error {
	switch {
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return ErrInvalidInput
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status >= 500:
		return ErrServer
	default:
		return nil
	}
}

// FromResponse builds an error for a non-2xx response.
func FromResponse(status int, code, title, message string, payload []byte) *APIError {
	if message == "" {
		message = http.StatusText(status)
	}
	return &APIError{
		Status:  status,
		Code:    code,
		Title:   title,
		Message: message,
		Payload: payload,
		Err:     sentinelFor(status),
	}
}

// Network creates an error for a request that never produced a response.
func Network(err error) *APIError {
	return &APIError{
		Code:    CodeNetwork,
		Message: "request could not be completed",
		Err:     err,
	}
}

// MissingRefreshToken is returned when a refresh is attempted without a
// stored refresh token.
func MissingRefreshToken() *APIError {
	return &APIError{
		Code:    CodeMissingRefreshToken,
		Message: "no refresh token stored; sign in again",
		Err:     ErrMissingRefreshToken,
	}
}

// MissingUser is returned when a user update is requested with no user in session.
func MissingUser() *APIError {
	return &APIError{
		Code:    CodeMissingUser,
		Message: "no user in session",
		Err:     ErrMissingUser,
	}
}

// InvalidInput creates a locally detected validation error.
func InvalidInput(message string) *APIError {
	return &APIError{
		Code:    CodeInvalidInput,
		Message: message,
		Err:     ErrInvalidInput,
	}
}

// Status returns the HTTP status carried by err, or 0 when none is known.
func Status(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Code returns the machine code carried by err, or "".
func Code(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ""
}

// IsUnauthorized reports whether err is an HTTP 401 from the backend.
func IsUnauthorized(err error) bool {
	return Status(err) == http.StatusUnauthorized
}
