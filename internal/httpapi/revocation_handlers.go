package httpapi

import (
	"errors"
	"net/http"

	"tokengate.org/internal/audit"
	"tokengate.org/internal/obs"
	"tokengate.org/internal/revocation"
	"tokengate.org/internal/roles"
)

func (a *API) handleRevocationCleanup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.requirePermission(w, r, roles.PermManageRevocations) {
		return
	}
	deleted, err := a.revoked.CleanupExpired(r.Context())
	if err != nil {
		handleRevocationError(w, r, err)
		return
	}
	obs.CleanupDeleted(deleted)
	_ = audit.LogEvent(r.Context(), "revocations.cleanup", map[string]any{
		"deleted": deleted,
	})
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

func (a *API) handleRevocationStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requirePermission(w, r, roles.PermManageRevocations) {
		return
	}
	stats, err := a.revoked.Stats(r.Context())
	if err != nil {
		handleRevocationError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func handleRevocationError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, revocation.ErrUnavailable) {
		writeError(w, r, http.StatusServiceUnavailable, "revocation store unavailable")
		return
	}
	writeError(w, r, http.StatusInternalServerError, "revocation operation failed")
}
