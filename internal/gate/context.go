package gate

import (
	"context"

	"tokengate.org/internal/token"
)

type ctxKey int

const claimsKey ctxKey = iota

// ContextWithClaims attaches verified claims to ctx.
func ContextWithClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext returns the claims attached by ContextWithClaims.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*token.Claims)
	return claims, ok
}

// SubjectFromContext returns the authenticated subject, or "" when the
// request is anonymous.
func SubjectFromContext(ctx context.Context) string {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Subject
	}
	return ""
}
