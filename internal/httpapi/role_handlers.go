package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"tokengate.org/internal/audit"
	"tokengate.org/internal/roles"
)

type createRoleRequest struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Permissions    []string `json:"permissions"`
	InheritedRoles []string `json:"inherited_roles"`
	Priority       int      `json:"priority"`
}

type updateRoleRequest struct {
	Description    *string  `json:"description"`
	Permissions    []string `json:"permissions"`
	InheritedRoles []string `json:"inherited_roles"`
	Priority       *int     `json:"priority"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRole(w, r)
	case http.MethodGet:
		a.listRoles(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, roles.PermManageRoles) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.registry.CreateRole(r.Context(), req.Name, req.Description,
		req.Permissions, req.InheritedRoles, req.Priority)
	if err != nil {
		handleRoleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "roles.create", map[string]any{
		"role": role.Name,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.Name))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	if !a.requirePermission(w, r, roles.PermManageRoles) {
		return
	}
	list, err := a.registry.ListRoles(r.Context())
	if err != nil {
		handleRoleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": list})
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	name := parts[0]
	switch {
	case len(parts) == 1:
		a.handleRole(w, r, name)
	case len(parts) == 2 && parts[1] == "activate":
		a.setRoleActive(w, r, name, true)
	case len(parts) == 2 && parts[1] == "deactivate":
		a.setRoleActive(w, r, name, false)
	case len(parts) == 2 && parts[1] == "permissions":
		a.resolveRolePermissions(w, r, name)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleRole(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodGet:
		if !a.requirePermission(w, r, roles.PermManageRoles) {
			return
		}
		role, err := a.registry.GetRole(r.Context(), name)
		if err != nil {
			handleRoleError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPatch:
		if !a.requirePermission(w, r, roles.PermManageRoles) {
			return
		}
		var req updateRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.registry.UpdateRole(r.Context(), name, roles.Update{
			Description:    req.Description,
			Permissions:    req.Permissions,
			InheritedRoles: req.InheritedRoles,
			Priority:       req.Priority,
		})
		if err != nil {
			handleRoleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "roles.update", map[string]any{
			"role": name,
		})
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.requirePermission(w, r, roles.PermManageRoles) {
			return
		}
		if err := a.registry.DeleteRole(r.Context(), name); err != nil {
			handleRoleError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "roles.delete", map[string]any{
			"role": name,
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) setRoleActive(w http.ResponseWriter, r *http.Request, name string, active bool) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, roles.PermManageRoles) {
		return
	}
	var err error
	event := "roles.deactivate"
	if active {
		event = "roles.activate"
		err = a.registry.ActivateRole(r.Context(), name)
	} else {
		err = a.registry.DeactivateRole(r.Context(), name)
	}
	if err != nil {
		handleRoleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"role": name,
	})
	w.WriteHeader(http.StatusNoContent)
}

// resolveRolePermissions exposes the flattened permission set, inherited
// roles included.
func (a *API) resolveRolePermissions(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, roles.PermManageRoles) {
		return
	}
	perms, err := a.registry.Resolve(r.Context(), name)
	if err != nil {
		handleRoleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        name,
		"permissions": roles.SortedPermissions(perms),
	})
}

func handleRoleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, roles.ErrInvalidInput), errors.Is(err, roles.ErrUnknownInheritedRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, roles.ErrDuplicateRole), errors.Is(err, roles.ErrRoleInUse):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, roles.ErrNotFound), errors.Is(err, roles.ErrBindingNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, roles.ErrUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "role store unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "role operation failed")
	}
}
