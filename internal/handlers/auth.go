package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/inkwell-blog/apiserver/internal/events"
	"github.com/inkwell-blog/apiserver/internal/services"
	"github.com/inkwell-blog/apiserver/internal/token"
	"github.com/inkwell-blog/apiserver/types"
	"github.com/rs/zerolog"
)

// AuthHandler provides registration, login and profile endpoints.
type AuthHandler struct {
	users     *services.UserService
	issuer    *token.Issuer
	publisher *events.Publisher
	logger    zerolog.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, issuer *token.Issuer, publisher *events.Publisher, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		users:     users,
		issuer:    issuer,
		publisher: publisher,
		logger:    logger,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, handler *AuthHandler, auth *AuthMiddleware) {
	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(auth.RequireAuth).Get("/me", handler.Me)
	r.With(auth.RequireAuth).Put("/profile", handler.UpdateProfile)
	r.With(auth.RequireAuth).Put("/change-password", handler.ChangePassword)
}

// Register creates a new account and returns a session token alongside
// the public identity view.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.Register(r.Context(), req.Name, req.Email, req.Password, req.Username)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrMissingFields):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrDuplicateIdentity):
			writeError(w, http.StatusConflict, err.Error())
		default:
			h.logger.Error().Err(err).Msg("register failed")
			writeError(w, http.StatusInternalServerError, msgServerError)
		}
		return
	}

	// The account exists even if token issuance fails; a login retry
	// will succeed.
	signed, err := h.issuer.Issue(user.ID)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", user.ID).Msg("issue token failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	h.publisher.UserRegistered(r.Context(), events.UserRegistered{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		At:       time.Now(),
	})

	writeJSON(w, http.StatusCreated, AuthResponse{Token: signed, User: user})
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	signed, err := h.issuer.Issue(user.ID)
	if err != nil {
		h.logger.Error().Err(err).Int("user_id", user.ID).Msg("issue token failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: signed, User: user})
}

// Me returns the authenticated user's public view.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgMissingToken)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// UpdateProfile applies a partial update to the caller's profile.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgMissingToken)
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.users.UpdateProfile(r.Context(), user.ID, services.ProfileUpdate{
		Name:     req.Name,
		Username: req.Username,
		Bio:      req.Bio,
		Avatar:   req.Avatar,
	})
	if err != nil {
		if errors.Is(err, services.ErrDuplicateIdentity) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.logger.Error().Err(err).Int("user_id", user.ID).Msg("profile update failed")
		writeError(w, http.StatusInternalServerError, msgServerError)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// ChangePassword verifies the current password and stores a hash of the
// new one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user, err := userFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, msgMissingToken)
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	if err := h.users.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, err.Error())
		case errors.Is(err, services.ErrMissingFields):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error().Err(err).Int("user_id", user.ID).Msg("password change failed")
			writeError(w, http.StatusInternalServerError, msgServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UpdateProfileRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Bio      *string `json:"bio"`
	Avatar   *string `json:"avatar"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}
