// Package correlation propagates a per-request correlation ID.
package correlation

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// HeaderName is the HTTP header for correlation IDs.
const HeaderName = "X-Correlation-ID"

// Middleware reuses an inbound correlation ID, falls back to chi's request ID,
// and mints a UUID otherwise. The ID is echoed in the response header.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderName)
		if id == "" {
			id = middleware.GetReqID(r.Context())
		}
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(HeaderName, id)
		next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
	})
}

// GetID retrieves the correlation ID from context.
func GetID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// WithID adds a correlation ID to the context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}
