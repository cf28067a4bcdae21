package scans

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound       = errors.New("scan not found")
	ErrNotCancellable = errors.New("scan is not cancellable")

	// ErrWorkerNotConfigured is returned by a Runner that has no worker endpoint.
	ErrWorkerNotConfigured = errors.New("worker not configured")
)

// Validation codes returned to API clients.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeInvalidTarget   = "invalid_target"
	CodeInvalidProvider = "invalid_provider"
	CodeTierRestricted  = "tier_restricted"
	CodeQuotaExceeded   = "quota_exceeded"
)

// ValidationError is a client error that carries a machine readable code.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus maps the code to a 4xx status.
func (e *ValidationError) HTTPStatus() int {
	switch e.Code {
	case CodeTierRestricted, CodeQuotaExceeded:
		return http.StatusForbidden
	default:
		return http.StatusBadRequest
	}
}

func Invalid(code, format string, args ...any) error {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}
