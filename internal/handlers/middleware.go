package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/internal/store"
	"github.com/inkwell-blog/apiserver/internal/token"
	"github.com/rs/zerolog"
)

// Stable error messages for the authorization gates.
const (
	msgMissingToken  = "missing token"
	msgTokenExpired  = "token expired"
	msgTokenInvalid  = "invalid token"
	msgUserNotFound  = "user not found"
	msgAdminRequired = "admin access required"
	msgServerError   = "internal server error"
)

// AuthMiddleware carries the dependencies of the identity and role
// gates.
type AuthMiddleware struct {
	users  *services.UserService
	issuer *token.Issuer
	logger zerolog.Logger
}

func NewAuthMiddleware(users *services.UserService, issuer *token.Issuer, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{users: users, issuer: issuer, logger: logger}
}

// RequireAuth is the identity gate. It extracts the bearer token,
// verifies it, resolves the embedded id to a live user record and
// attaches that record to the request context. The store lookup runs on
// every request on purpose: role changes take effect immediately and
// deleted users are rejected even while their tokens are unexpired.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, msgMissingToken)
			return
		}

		userID, err := m.issuer.Verify(tokenString)
		if err != nil {
			if errors.Is(err, token.ErrExpired) {
				writeError(w, http.StatusUnauthorized, msgTokenExpired)
				return
			}
			writeError(w, http.StatusUnauthorized, msgTokenInvalid)
			return
		}

		user, err := m.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusUnauthorized, msgUserNotFound)
				return
			}
			m.logger.Error().Err(err).Int("user_id", userID).Msg("auth user lookup failed")
			writeError(w, http.StatusInternalServerError, msgServerError)
			return
		}

		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// RequireAdmin is the role gate. It assumes RequireAuth already
// resolved an identity and rejects non-admin callers.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := userFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, msgMissingToken)
			return
		}
		if !user.IsAdmin() {
			writeError(w, http.StatusForbidden, msgAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", false
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	tokenString := strings.TrimSpace(parts[1])
	if tokenString == "" {
		return "", false
	}
	return tokenString, true
}
