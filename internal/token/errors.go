package token

import "errors"

// Verification failures are disjoint: exactly one of these comes back for a
// rejected token, checked in order (signature, expiry, revocation, kind,
// role). ErrStoreUnavailable is an infrastructure failure, not a verdict on
// the token, and callers must not treat it as either valid or invalid.
var (
	ErrInvalidToken     = errors.New("token: invalid token")
	ErrExpired          = errors.New("token: expired")
	ErrRevoked          = errors.New("token: revoked")
	ErrWrongKind        = errors.New("token: wrong token kind")
	ErrUnknownRole      = errors.New("token: unknown or inactive role")
	ErrStoreUnavailable = errors.New("token: revocation store unavailable")
)
