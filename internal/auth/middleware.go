package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/contractlens/backend/internal/apierrors"
	"github.com/contractlens/backend/internal/logging"
)

// contextKey is an unexported type used for context keys to avoid collisions.
type contextKey int

const (
	claimsContextKey contextKey = iota
)

// Middleware validates the bearer token in the Authorization header and
// injects the claims into the request context.
func Middleware(v *Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				apierrors.NewUnauthorizedError("missing authorization header").Write(w, r)
				return
			}

			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				apierrors.NewUnauthorizedError("unsupported authorization scheme").Write(w, r)
				return
			}

			claims, err := v.Verify(token)
			if err != nil {
				apierrors.NewUnauthorizedError("invalid or expired token").Write(w, r)
				return
			}

			ctx := WithClaims(r.Context(), claims)
			ctx = logging.WithUserID(ctx, claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithClaims stores claims on the context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// GetClaimsFromContext extracts the Claims stored in the context by the auth
// middleware.
func GetClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}

// GetUserIDFromContext returns the authenticated user's ID.
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	claims := GetClaimsFromContext(ctx)
	if claims == nil {
		return uuid.Nil, false
	}
	id, err := claims.UserID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// ContextWithUser returns ctx carrying claims for userID. Background jobs use
// it to run user-scoped code outside a request.
func ContextWithUser(ctx context.Context, userID uuid.UUID) context.Context {
	claims := &Claims{}
	claims.Subject = userID.String()
	return WithClaims(ctx, claims)
}

// RequireRole rejects requests whose token does not carry role. It must run
// after Middleware.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := GetClaimsFromContext(r.Context())
			if claims == nil || claims.Role != role {
				apierrors.NewForbiddenError("insufficient role").Write(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
