package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"chatcore/internal/auth"
)

// contextKey is a private type for context values set by this package,
// so keys cannot collide with other packages.
type contextKey string

// UserIDKey is the context key holding the authenticated user's ID.
const UserIDKey contextKey = "userID"

// UserNameKey is the context key holding the authenticated user's display name.
const UserNameKey contextKey = "userName"

// ClaimsKey is the context key holding the full validated token claims.
const ClaimsKey contextKey = "claims"

// AuthMiddleware validates the Bearer token on every request, rejects
// revoked tokens via the blacklist, and stores the caller's identity in
// the request context.
func AuthMiddleware(jwtSecretKey string, blacklist auth.TokenBlacklist) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization token", http.StatusUnauthorized)
				return
			}

			headerParts := strings.Split(authHeader, " ")
			if len(headerParts) != 2 || strings.ToLower(headerParts[0]) != "bearer" {
				writeAuthError(w, "authorization header must be 'Bearer {token}'", http.StatusUnauthorized)
				return
			}

			claims, err := auth.ValidateToken(r.Context(), headerParts[1], jwtSecretKey, blacklist)
			if err != nil {
				writeAuthError(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDKey, claims.UserID)
			ctx = context.WithValue(ctx, UserNameKey, claims.Name)
			ctx = context.WithValue(ctx, ClaimsKey, claims)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext returns the authenticated user's ID, if any.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok
}

// GetUserNameFromContext returns the authenticated user's display name, if any.
func GetUserNameFromContext(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(UserNameKey).(string)
	return name, ok
}

// GetClaimsFromContext returns the validated token claims, if any.
func GetClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.Claims)
	return claims, ok
}

func writeAuthError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
