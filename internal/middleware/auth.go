// Package middleware provides HTTP middlewares for authentication and logging.
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/atinyakov/casebook/internal/auth"
	"github.com/atinyakov/casebook/internal/models"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// Authenticator validates a bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

// BearerAuth is a middleware that requires a valid session token.
//
// It reads "Authorization: Bearer <token>", asks the Authenticator to verify
// it and stores the resulting claims in the request context, so handlers can
// read the principal with GetPrincipalFromContext. Requests without a valid
// token get 401 with an "unauthorized" error code.
func BearerAuth(a Authenticator, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				unauthorized(w, "missing bearer token")
				return
			}

			claims, err := a.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				if errors.Is(err, models.ErrUnauthorized) {
					unauthorized(w, "invalid or expired session")
					return
				}
				log.Error("authenticate request", zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: "internal error", Code: models.CodeInternal})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="casebook"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Error: msg, Code: models.CodeUnauthorized})
}

// WithClaims returns a copy of ctx carrying claims.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetPrincipalFromContext returns the authenticated user stored by
// BearerAuth. ok is false when the request was not authenticated.
func GetPrincipalFromContext(ctx context.Context) (user models.User, ok bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	if !ok || c == nil {
		return models.User{}, false
	}
	return c.User(), true
}

// GetSessionIDFromContext returns the token id of the current session, or an
// empty string.
func GetSessionIDFromContext(ctx context.Context) string {
	if c, ok := ctx.Value(claimsKey).(*auth.Claims); ok && c != nil {
		return c.ID
	}
	return ""
}
