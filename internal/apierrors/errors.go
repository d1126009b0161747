// Package apierrors defines the JSON error envelope written by every
// ContractLens route: {"code", "message", "details", "request_id"}.
package apierrors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/contractlens/backend/internal/correlation"
)

// Kind is the machine-readable error code clients switch on.
type Kind string

const (
	KindBadRequest   Kind = "BAD_REQUEST"
	KindUnauthorized Kind = "UNAUTHORIZED"
	KindForbidden    Kind = "FORBIDDEN"
	KindNotFound     Kind = "NOT_FOUND"
	KindConflict     Kind = "CONFLICT"
	KindValidation   Kind = "VALIDATION_ERROR"
	KindInternal     Kind = "INTERNAL_ERROR"
	KindUpstream     Kind = "UPSTREAM_ERROR"
	KindUnavailable  Kind = "SERVICE_UNAVAILABLE"
	KindTimeout      Kind = "TIMEOUT"
)

var kindStatus = map[Kind]int{
	KindBadRequest:   http.StatusBadRequest,
	KindUnauthorized: http.StatusUnauthorized,
	KindForbidden:    http.StatusForbidden,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindValidation:   http.StatusUnprocessableEntity,
	KindInternal:     http.StatusInternalServerError,
	KindUpstream:     http.StatusBadGateway,
	KindUnavailable:  http.StatusServiceUnavailable,
	KindTimeout:      http.StatusGatewayTimeout,
}

// Status is the HTTP status for k. Unknown kinds map to 500.
func (k Kind) Status() int {
	if s, ok := kindStatus[k]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// APIError is a failed request as the client sees it.
type APIError struct {
	Code       Kind   `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Details    any    `json:"details,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// New builds an error of the given kind.
func New(kind Kind, message string) *APIError {
	return &APIError{Code: kind, Message: message, StatusCode: kind.Status()}
}

func (e *APIError) Error() string { return string(e.Code) + ": " + e.Message }

// WithDetails attaches a details payload and returns e.
func (e *APIError) WithDetails(details any) *APIError {
	e.Details = details
	return e
}

// Write stamps the correlation ID and sends e as the response body.
func (e *APIError) Write(w http.ResponseWriter, r *http.Request) {
	e.RequestID = correlation.GetID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

func NewBadRequestError(message string) *APIError   { return New(KindBadRequest, message) }
func NewUnauthorizedError(message string) *APIError { return New(KindUnauthorized, message) }
func NewForbiddenError(message string) *APIError    { return New(KindForbidden, message) }
func NewConflictError(message string) *APIError     { return New(KindConflict, message) }
func NewInternalError(message string) *APIError     { return New(KindInternal, message) }

// NewNotFoundError names the missing contract, invoice, document or job.
func NewNotFoundError(resource, id string) *APIError {
	return New(KindNotFound, resource+" not found").
		WithDetails(map[string]string{"resource": resource, "id": id})
}

func NewValidationError(message string, details any) *APIError {
	return New(KindValidation, message).WithDetails(details)
}

// NewUpstreamError reports a failed call to S3, STS or the marketplace catalog.
func NewUpstreamError(service, message string) *APIError {
	return New(KindUpstream, message).WithDetails(map[string]string{"service": service})
}

// NewServiceUnavailableError is used when an optional backend such as
// document storage is not configured.
func NewServiceUnavailableError(feature string) *APIError {
	return New(KindUnavailable, feature+" is not available")
}

func NewTimeoutError() *APIError { return New(KindTimeout, "request timed out") }

// FromError unwraps an APIError from err. Deadlines become TIMEOUT and
// anything else is an opaque INTERNAL_ERROR.
func FromError(err error) *APIError {
	var apiErr *APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, context.DeadlineExceeded):
		return NewTimeoutError()
	default:
		return NewInternalError("unexpected error")
	}
}

// Recoverer writes an INTERNAL_ERROR envelope when a handler panics.
// http.ErrAbortHandler is re-raised so net/http can drop the connection.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			NewInternalError("internal server error").Write(w, r)
		}()
		next.ServeHTTP(w, r)
	})
}
