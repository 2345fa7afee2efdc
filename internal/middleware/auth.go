package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/mslate/shortlink/internal/auth"
	"github.com/mslate/shortlink/internal/model"
	"github.com/mslate/shortlink/internal/repo"
	"github.com/mslate/shortlink/internal/response"
)

type contextKey string

const userKey contextKey = "user"

// AuthMiddleware validates bearer access tokens, loads the user from the
// store, and attaches it to the request context.
func AuthMiddleware(jwtService *auth.JWTService, users repo.UserRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				response.WriteError(w, http.StatusUnauthorized, "Unauthorized", "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				response.WriteError(w, http.StatusUnauthorized, "Unauthorized", "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				response.WriteError(w, http.StatusUnauthorized, "Unauthorized", "missing token")
				return
			}

			claims, err := jwtService.VerifyAccessToken(tokenString)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
				return
			}

			user, err := users.GetByID(r.Context(), claims.UserID)
			if err != nil {
				response.WriteError(w, http.StatusUnauthorized, "Unauthorized", "user not found")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUser returns the user attached to the request context (set by AuthMiddleware)
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok
}
