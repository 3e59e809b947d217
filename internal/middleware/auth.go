package middleware

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/banksec/backend/internal/models"
	"github.com/banksec/backend/internal/services"
)

type contextKey string

const (
	userIDKey contextKey = "userID"
	roleKey   contextKey = "role"
	tokenKey  contextKey = "token"
)

// AuthMiddleware requires a valid bearer token and puts its address and
// role on the request context.
func AuthMiddleware(auth *services.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Get token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				services.SendCodedError(w, "Authorization header required", "unauthorized", http.StatusUnauthorized, nil)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				services.SendCodedError(w, "Invalid authorization header format", "unauthorized", http.StatusUnauthorized, nil)
				return
			}

			claims, err := auth.ParseToken(r.Context(), parts[1])
			if err != nil {
				services.SendCodedError(w, "Invalid token", "unauthorized", http.StatusUnauthorized, nil)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.Address)
			ctx = context.WithValue(ctx, roleKey, claims.Role)
			ctx = context.WithValue(ctx, tokenKey, parts[1])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects callers whose token does not carry role.
func RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if Role(r.Context()) != role {
				log.Printf("[AUTH] %s denied %s %s: role %q required", UserID(r.Context()), r.Method, r.URL.Path, role)
				services.SendCodedError(w, "Permission denied", "permission_denied", http.StatusForbidden, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserID returns the authenticated address, or "".
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func Role(ctx context.Context) models.Role {
	role, _ := ctx.Value(roleKey).(models.Role)
	return role
}

// Token returns the raw bearer token of the request.
func Token(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey).(string)
	return t
}

// WithUser is used by tests and internal callers to act as an account.
func WithUser(ctx context.Context, address string, role models.Role) context.Context {
	ctx = context.WithValue(ctx, userIDKey, address)
	return context.WithValue(ctx, roleKey, role)
}
