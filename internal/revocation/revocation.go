// Package revocation implements the token deny-list: revoked token
// identifiers kept until the token's own expiry makes them harmless.
package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Record is one revoked token. Records are immutable after creation and are
// only ever deleted, either by TTL or by a cleanup pass.
type Record struct {
	// TokenHash is a one-way hash of the token identifier. The raw bearer
	// material is never stored.
	TokenHash string    `json:"token_hash"`
	Reason    string    `json:"reason"`
	RevokedAt time.Time `json:"revoked_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Stats summarizes the deny-list. Expired records are those a cleanup pass
// would remove.
type Stats struct {
	Total   int `json:"total"`
	Active  int `json:"active"`
	Expired int `json:"expired"`
}

// Store is the deny-list persistence contract. Revoke is idempotent:
// re-revoking an already listed token succeeds without a duplicate record.
// IsRevoked runs on every token verification and must stay cheap.
type Store interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time, reason string) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)

	// CleanupExpired removes every record whose expiry has passed and
	// reports how many were deleted. With a TTL-indexed backend this is a
	// safety net rather than the primary expiry mechanism.
	CleanupExpired(ctx context.Context) (int, error)

	Stats(ctx context.Context) (Stats, error)
}

// ErrUnavailable reports a deny-list backend that cannot be reached. It must
// never be collapsed into a "not revoked" answer.
var ErrUnavailable = errors.New("revocation: store unavailable")

// HashTokenID derives the storage key for a token identifier.
func HashTokenID(tokenID string) string {
	sum := sha256.Sum256([]byte(tokenID))
	return hex.EncodeToString(sum[:])
}
