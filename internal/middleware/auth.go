package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"library-backend/internal/models"
	"library-backend/internal/services"
	"library-backend/internal/token"
	"library-backend/utils/response"
)

type contextKey string

const UserContextKey contextKey = "user"

// Authenticator resolves bearer tokens and checks roles.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
	RequireAdmin(user *models.User) (*models.User, error)
}

type AuthMiddleware struct {
	auth   Authenticator
	logger *slog.Logger
}

func NewAuthMiddleware(auth Authenticator, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{auth: auth, logger: logger}
}

func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w, "Not authenticated")
			return
		}

		user, err := m.auth.Authenticate(r.Context(), tokenString)
		if err != nil {
			switch {
			case errors.Is(err, token.ErrExpiredToken):
				unauthorized(w, "Token has expired")
			case errors.Is(err, services.ErrUnauthenticated):
				m.logger.DebugContext(r.Context(), "token rejected", "error", err)
				unauthorized(w, "Invalid token")
			case errors.Is(err, services.ErrUserNotFound):
				response.Error(w, http.StatusNotFound, "User not found")
			default:
				m.logger.ErrorContext(r.Context(), "authentication failed", "error", err)
				response.Error(w, http.StatusInternalServerError, "Internal server error")
			}
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin authenticates first, so an invalid token is always a 401
// whatever role it claims.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := m.auth.RequireAdmin(GetUserFromContext(r.Context())); err != nil {
			response.Error(w, http.StatusForbidden, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

func bearerToken(header string) (string, bool) {
	scheme, tokenString, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tokenString = strings.TrimSpace(tokenString)
	return tokenString, tokenString != ""
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	response.Error(w, http.StatusUnauthorized, message)
}
