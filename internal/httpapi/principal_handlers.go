package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tokengate.org/internal/audit"
	"tokengate.org/internal/principal"
	"tokengate.org/internal/roles"
)

type assignRoleRequest struct {
	Role string `json:"role"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

func (a *API) handlePrincipals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, roles.PermManagePrincipals) {
		return
	}
	list, err := a.principals.List(r.Context())
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"principals": list})
}

func (a *API) handlePrincipalResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/principals/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]
	switch {
	case len(parts) == 1:
		a.getPrincipal(w, r, id)
	case len(parts) == 2 && parts[1] == "role":
		a.assignPrincipalRole(w, r, id)
	case len(parts) == 2 && parts[1] == "status":
		a.setPrincipalStatus(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getPrincipal(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, roles.PermManagePrincipals) {
		return
	}
	p, err := a.principals.Find(r.Context(), id)
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) assignPrincipalRole(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodPut:
	case http.MethodDelete:
		a.removePrincipalRole(w, r, id)
		return
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
		return
	}
	if !a.requirePermission(w, r, roles.PermManagePrincipals) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Role = strings.TrimSpace(req.Role)
	if req.Role == "" {
		writeError(w, r, http.StatusBadRequest, "role is required")
		return
	}

	p, err := a.principals.Find(r.Context(), id)
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	// Role bindings are keyed by the principal's email: that is the token
	// subject, and bindings must survive id regeneration across backends.
	binding, err := a.registry.AssignRole(r.Context(), p.Email, req.Role)
	if err != nil {
		handleRoleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "principals.assign_role", map[string]any{
		"principal": p.Email,
		"role":      binding.RoleName,
	})
	writeJSON(w, http.StatusOK, binding)
}

// removePrincipalRole drops the role binding; the principal falls back to
// the default role on next login.
func (a *API) removePrincipalRole(w http.ResponseWriter, r *http.Request, id string) {
	if !a.requirePermission(w, r, roles.PermManagePrincipals) {
		return
	}
	p, err := a.principals.Find(r.Context(), id)
	if err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	if err := a.registry.UnassignRole(r.Context(), p.Email); err != nil {
		handleRoleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "principals.unassign_role", map[string]any{
		"principal": p.Email,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) setPrincipalStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requirePermission(w, r, roles.PermManagePrincipals) {
		return
	}
	var req setStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Status != principal.StatusActive && req.Status != principal.StatusDisabled {
		writeError(w, r, http.StatusBadRequest, "status must be active or disabled")
		return
	}
	if err := a.principals.SetStatus(r.Context(), id, req.Status); err != nil {
		handlePrincipalError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "principals.set_status", map[string]any{
		"principal_id": id,
		"status":       req.Status,
	})
	w.WriteHeader(http.StatusNoContent)
}

func handlePrincipalError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, principal.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, principal.ErrDuplicateEmail):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, principal.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "account store unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "account operation failed")
	}
}
