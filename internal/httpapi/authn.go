package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tokengate.org/internal/gate"
	"tokengate.org/internal/token"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth verifies the bearer token on every non-public route and attaches
// the claims to the request context. Handlers that guard a permission call
// requirePermission on top of this.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthenticated")
			return
		}

		claims, err := a.gate.Authenticate(r.Context(), raw)
		if err != nil {
			handleGateError(w, r, err)
			return
		}

		ctx := gate.ContextWithClaims(r.Context(), claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requirePermission enforces perm for the already authenticated caller and
// writes the error response itself. Returns false when the request is done.
func (a *API) requirePermission(w http.ResponseWriter, r *http.Request, perm string) bool {
	claims, _ := gate.ClaimsFromContext(r.Context())
	if err := a.gate.Authorize(claims, perm); err != nil {
		handleGateError(w, r, err)
		return false
	}
	return true
}

func handleGateError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, gate.ErrUnauthenticated):
		writeError(w, r, http.StatusUnauthorized, "unauthenticated")
	case errors.Is(err, gate.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "forbidden")
	case errors.Is(err, token.ErrStoreUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "authentication backend unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "authentication error")
	}
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	raw := strings.TrimSpace(header[len(bearer):])
	if raw == "" {
		return "", errors.New("missing bearer token")
	}
	return raw, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
