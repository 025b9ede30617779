package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with HTTP status code
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("code=%d, message=%s", e.Code, e.Message)
}

// Common errors
var (
	ErrNotFound       = &AppError{Code: http.StatusNotFound, Message: "Resource not found"}
	ErrBadRequest     = &AppError{Code: http.StatusBadRequest, Message: "Bad request"}
	ErrConflict       = &AppError{Code: http.StatusConflict, Message: "Conflict"}
	ErrInternalServer = &AppError{Code: http.StatusInternalServerError, Message: "Internal server error"}
)

// Domain sentinel errors for the alerting engine.
var (
	// ErrSourceUnavailable marks a transient metric backend failure. The
	// evaluation cycle treats it as "no data", not as a rule failure.
	ErrSourceUnavailable = errors.New("metric source unavailable")

	// ErrChannelSend marks a single failed delivery attempt on a channel.
	ErrChannelSend = errors.New("channel send failed")

	// ErrChannelOpen is returned when a channel's circuit breaker is open
	// and the send was skipped.
	ErrChannelOpen = errors.New("channel circuit open")

	// ErrAuditWrite marks a failed audit append. Callers must not advance
	// an alert state transition past a failed audit write.
	ErrAuditWrite = errors.New("audit write failed")
)

// New creates a new AppError
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WithDetails adds details to an error
func WithDetails(err *AppError, details string) *AppError {
	return &AppError{
		Code:    err.Code,
		Message: err.Message,
		Details: details,
	}
}

// GetStatusCode returns the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
