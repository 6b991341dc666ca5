package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/saptiva-copilot/gateway/internal/apierr"
	"github.com/saptiva-copilot/gateway/pkg/models"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func authHandlers(deps Deps) map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"/api/auth/register":        handleRegister(deps),
		"/api/auth/login":           handleLogin(deps),
		"/api/auth/refresh":         handleRefresh(deps),
		"/api/auth/logout":          handleLogout(deps),
		"/api/auth/me":              handleMe(deps),
		"/api/auth/forgot-password": handleForgotPassword(deps),
		"/api/auth/reset-password":  handleResetPassword(deps),
	}
}

func handleRegister(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		user, err := deps.Auth.Register(r.Context(), req.Username, req.Email, req.Password)
		if err != nil {
			renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusCreated, sanitizeUser(user))
	}
}

func handleLogin(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		user, tokens, err := deps.Auth.Login(r.Context(), req.Identifier, req.Password)
		if err != nil {
			renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{"user": sanitizeUser(user), "tokens": tokens})
	}
}

func handleRefresh(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		user, tokens, err := deps.Auth.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{"user": sanitizeUser(user), "tokens": tokens})
	}
}

func handleLogout(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req logoutRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := deps.Auth.Logout(r.Context(), bearerToken(r), req.RefreshToken); err != nil {
			renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func handleMe(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := userFromContext(r.Context())
		if !ok {
			renderError(w, r, apierr.New("INVALID_TOKEN", http.StatusUnauthorized, "missing bearer token"))
			return
		}
		renderJSON(w, http.StatusOK, sanitizeUser(user))
	}
}

func handleForgotPassword(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forgotPasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		// Always 200: never leak whether an email is registered.
		deps.Auth.RequestPasswordReset(r.Context(), req.Email)
		renderJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func handleResetPassword(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req resetPasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if err := deps.Auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
			renderError(w, r, err)
			return
		}
		renderJSON(w, http.StatusOK, map[string]any{"ok": true})
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		renderError(w, r, apierr.Validation("request body is not valid JSON"))
		return false
	}
	return true
}

// sanitizeUser strips the password hash before a User crosses the wire.
func sanitizeUser(user *models.User) map[string]any {
	return map[string]any{
		"id":         user.ID,
		"username":   user.Username,
		"email":      user.Email,
		"is_active":  user.IsActive,
		"created_at": user.CreatedAt,
		"last_login": user.LastLogin,
	}
}
