// Package gate decides whether a request may proceed. It separates the two
// distinct failure modes: the caller could not be identified at all
// (unauthenticated) versus the caller is known but lacks the permission
// (forbidden).
package gate

import (
	"context"
	"errors"
	"fmt"

	"tokengate.org/internal/obs"
	"tokengate.org/internal/token"
)

var (
	// ErrUnauthenticated means the bearer token was missing, malformed,
	// expired, revoked or otherwise unusable. The precise cause is logged
	// server-side but never returned to the caller, so a probing client
	// cannot distinguish a revoked token from a forged one.
	ErrUnauthenticated = errors.New("gate: unauthenticated")

	// ErrForbidden means the caller is authenticated but the resolved
	// permission set does not contain the required permission.
	ErrForbidden = errors.New("gate: forbidden")
)

// Gate authenticates bearer tokens and enforces permissions.
type Gate struct {
	tokens *token.Service
}

// New builds a Gate over the token service.
func New(tokens *token.Service) *Gate {
	return &Gate{tokens: tokens}
}

// Authenticate verifies the bearer token and returns its claims. All token
// verdicts collapse into ErrUnauthenticated; a revocation store outage is
// passed through as token.ErrStoreUnavailable because it is not a statement
// about the caller.
func (g *Gate) Authenticate(ctx context.Context, raw string) (*token.Claims, error) {
	if raw == "" {
		return nil, ErrUnauthenticated
	}
	claims, err := g.tokens.Verify(ctx, raw)
	if err != nil {
		if errors.Is(err, token.ErrStoreUnavailable) {
			return nil, err
		}
		obs.LogEntry("info", "authentication rejected", map[string]any{
			"cause": err.Error(),
		})
		return nil, ErrUnauthenticated
	}
	return claims, nil
}

// Authorize checks that claims grant perm.
func (g *Gate) Authorize(claims *token.Claims, perm string) error {
	if claims == nil {
		return ErrUnauthenticated
	}
	if perm == "" {
		return nil
	}
	if !claims.HasPermission(perm) {
		return fmt.Errorf("%w: missing permission %q", ErrForbidden, perm)
	}
	return nil
}

// AuthenticateAndAuthorize runs both checks in order. Authentication is
// always decided first so a caller with a bad token never learns whether the
// permission would have been granted.
func (g *Gate) AuthenticateAndAuthorize(ctx context.Context, raw, perm string) (*token.Claims, error) {
	claims, err := g.Authenticate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := g.Authorize(claims, perm); err != nil {
		return nil, err
	}
	return claims, nil
}
