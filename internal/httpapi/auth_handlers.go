package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"tokengate.org/internal/audit"
	"tokengate.org/internal/gate"
	"tokengate.org/internal/principal"
	"tokengate.org/internal/roles"
	"tokengate.org/internal/token"
)

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type tokenPairResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, r, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Password) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	hash, err := principal.HashPassword(req.Password)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}
	p := &principal.Principal{
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: hash,
		Status:       principal.StatusActive,
	}
	if err := a.principals.Create(r.Context(), p); err != nil {
		switch {
		case errors.Is(err, principal.ErrDuplicateEmail):
			writeError(w, r, http.StatusConflict, "email already registered")
		case errors.Is(err, principal.ErrUnavailable):
			writeError(w, r, http.StatusServiceUnavailable, "account store unavailable")
		default:
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	if _, err := a.registry.AssignRole(r.Context(), email, roles.RoleUser); err != nil {
		writeError(w, r, http.StatusInternalServerError, "registration failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.register", map[string]any{
		"email": email,
	})
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	p, err := a.principals.FindByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, principal.ErrUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "account store unavailable")
			return
		}
		// Same answer for unknown email and bad password.
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := principal.VerifyPassword(p.PasswordHash, req.Password); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if p.Disabled() {
		writeError(w, r, http.StatusForbidden, "account disabled")
		return
	}

	roleName := roles.RoleUser
	if role, err := a.registry.RoleFor(r.Context(), p.Email); err == nil {
		roleName = role.Name
	}

	access, claims, err := a.tokens.IssueAccessToken(r.Context(), p.Email, roleName)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}
	refresh, _, err := a.tokens.IssueRefreshToken(r.Context(), p.Email, roleName)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email": p.Email,
		"role":  roleName,
	})
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    claims.ExpiresAt.Time,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	access, claims, err := a.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		handleTokenError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"subject": claims.Subject,
	})
	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresAt:   claims.ExpiresAt.Time,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// The middleware already verified this token; revoke the raw value.
	raw, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if err := a.tokens.Revoke(r.Context(), raw, "logout"); err != nil {
		handleTokenError(w, r, err)
		return
	}

	// Optionally revoke the companion refresh token in the same call.
	var req logoutRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if req.RefreshToken != "" {
			if err := a.tokens.Revoke(r.Context(), req.RefreshToken, "logout"); err != nil {
				handleTokenError(w, r, err)
				return
			}
		}
	}

	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	claims, ok := gate.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, r, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	p, err := a.principals.FindByEmail(r.Context(), claims.Subject)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "password change failed")
		return
	}
	if err := principal.VerifyPassword(p.PasswordHash, req.CurrentPassword); err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	hash, err := principal.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "password change failed")
		return
	}
	if err := a.principals.UpdatePassword(r.Context(), p.ID, hash); err != nil {
		writeError(w, r, http.StatusInternalServerError, "password change failed")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.password_change", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := gate.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":     claims.Subject,
		"role":        claims.Role,
		"permissions": claims.Permissions,
		"expires_at":  claims.ExpiresAt.Time,
	})
}

func handleTokenError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, token.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "authentication backend unavailable")
	case errors.Is(err, token.ErrUnknownRole):
		writeError(w, r, http.StatusForbidden, "role unavailable")
	case errors.Is(err, token.ErrInvalidToken),
		errors.Is(err, token.ErrExpired),
		errors.Is(err, token.ErrRevoked),
		errors.Is(err, token.ErrWrongKind):
		writeError(w, r, http.StatusUnauthorized, "invalid token")
	default:
		writeError(w, r, http.StatusInternalServerError, "token operation failed")
	}
}
