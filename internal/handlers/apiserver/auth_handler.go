package apiserver

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"chatcore/internal/auth"
	"chatcore/internal/cerrors"
	"chatcore/internal/middleware"
	"chatcore/internal/models"
)

// AuthHandler exposes register, login and logout.
type AuthHandler struct {
	authService    auth.Service
	tokenBlacklist auth.TokenBlacklist
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService auth.Service, tokenBlacklist auth.TokenBlacklist) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		tokenBlacklist: tokenBlacklist,
	}
}

// RegisterRequest is the body of a registration request.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest is the body of a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is returned on successful login.
type LoginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	user, err := h.authService.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, user)
}

// Login verifies credentials and returns a token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	token, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		// Bad credentials are 401 here, not the generic 403 mapping.
		if errors.Is(err, cerrors.ErrUnauthorized) {
			writeJSONError(w, "invalid email or password", http.StatusUnauthorized)
			return
		}
		writeServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

// Logout revokes the current token by blacklisting its jti until the
// token would have expired on its own.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaimsFromContext(r.Context())
	if !ok {
		writeJSONError(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		writeJSONError(w, "token is missing jti or expiry", http.StatusInternalServerError)
		return
	}

	if err := h.tokenBlacklist.Add(r.Context(), claims.ID, claims.ExpiresAt.Time); err != nil {
		log.Printf("failed to blacklist token %s: %v", claims.ID, err)
		writeJSONError(w, "logout failed", http.StatusInternalServerError)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "logged out"})
}
