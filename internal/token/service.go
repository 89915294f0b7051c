// Package token implements the bearer credential lifecycle: issuance,
// verification, refresh and revocation of signed JWTs.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"tokengate.org/internal/obs"
	"tokengate.org/internal/retry"
	"tokengate.org/internal/revocation"
	"tokengate.org/internal/roles"
)

// Token kinds. Access tokens carry requests; refresh tokens only mint new
// access tokens.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

const (
	defaultIssuer     = "tokengate"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour

	storeRetryAttempts = 3
	storeRetryDelay    = 50 * time.Millisecond
)

// Claims is the signed payload. Permissions are never embedded in the token;
// they are resolved from the live role graph on every verification so that
// role edits take effect before the token expires.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
	Kind string `json:"token_kind"`

	Permissions []string `json:"-"`
}

// HasPermission reports whether the resolved permission set contains perm.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Service issues and verifies tokens.
type Service struct {
	secret     []byte
	registry   *roles.Registry
	revoked    revocation.Store
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithIssuer sets the iss claim on issued tokens.
func WithIssuer(issuer string) Option {
	return func(s *Service) {
		if issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAccessTTL sets the access token lifetime.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.accessTTL = d
		}
	}
}

// WithRefreshTTL sets the refresh token lifetime.
func WithRefreshTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.refreshTTL = d
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService builds a token service over the role registry and the
// revocation deny-list.
func NewService(secret []byte, registry *roles.Registry, revoked revocation.Store, opts ...Option) (*Service, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret is empty")
	}
	if registry == nil {
		return nil, errors.New("token: role registry is nil")
	}
	if revoked == nil {
		return nil, errors.New("token: revocation store is nil")
	}
	s := &Service{
		secret:     secret,
		registry:   registry,
		revoked:    revoked,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccessToken mints an access token for subject under role. The role
// must exist and be active at issuance time.
func (s *Service) IssueAccessToken(ctx context.Context, subject, role string) (string, *Claims, error) {
	return s.issue(ctx, subject, role, KindAccess, s.accessTTL)
}

// IssueRefreshToken mints a refresh token for subject under role.
func (s *Service) IssueRefreshToken(ctx context.Context, subject, role string) (string, *Claims, error) {
	return s.issue(ctx, subject, role, KindRefresh, s.refreshTTL)
}

func (s *Service) issue(ctx context.Context, subject, role, kind string, ttl time.Duration) (string, *Claims, error) {
	var r *roles.Role
	err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, retryableStoreErr, func() error {
		var err error
		r, err = s.registry.GetRole(ctx, role)
		return err
	})
	if err != nil {
		if errors.Is(err, roles.ErrNotFound) {
			return "", nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
		}
		if errors.Is(err, roles.ErrUnavailable) {
			return "", nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return "", nil, err
	}
	if !r.IsActive {
		return "", nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}

	now := s.now().UTC()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
		Kind: kind,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	obs.TokenIssued(kind)
	return raw, claims, nil
}

// Verify validates an access token and returns its claims with the
// permission set resolved from the current role graph. Checks run in a fixed
// order so the caller sees the most fundamental failure first: signature,
// expiry, revocation, kind, role.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.verifyKind(ctx, raw, KindAccess)
	if err != nil {
		obs.TokenVerified(verifyResult(err))
		return nil, err
	}
	obs.TokenVerified("ok")
	return claims, nil
}

func (s *Service) verifyKind(ctx context.Context, raw, wantKind string) (*Claims, error) {
	claims, err := s.parse(raw)
	if err != nil {
		return nil, err
	}

	// Expiry is validated against the injected clock. A token expiring at
	// exactly now is already expired.
	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	if !s.now().UTC().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}

	revoked, err := s.isRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrRevoked
	}

	if claims.Kind != wantKind {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrWrongKind, claims.Kind, wantKind)
	}

	var perms map[string]struct{}
	err = retry.Do(ctx, storeRetryAttempts, storeRetryDelay, retryableStoreErr, func() error {
		var err error
		perms, err = s.registry.Resolve(ctx, claims.Role)
		return err
	})
	if err != nil {
		if errors.Is(err, roles.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRole, claims.Role)
		}
		if errors.Is(err, roles.ErrUnavailable) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return nil, err
	}
	claims.Permissions = roles.SortedPermissions(perms)
	return claims, nil
}

// Refresh verifies a refresh token and mints a fresh access token for the
// same subject and role. The refresh token is not rotated; it stays usable
// until its own expiry or revocation.
func (s *Service) Refresh(ctx context.Context, refreshRaw string) (string, *Claims, error) {
	claims, err := s.verifyKind(ctx, refreshRaw, KindRefresh)
	if err != nil {
		obs.TokenVerified(verifyResult(err))
		return "", nil, err
	}
	obs.TokenVerified("ok")
	return s.IssueAccessToken(ctx, claims.Subject, claims.Role)
}

// Revoke adds the token to the deny-list. Only the signature is checked, so
// an expired token can still be revoked explicitly; the deny-list record then
// ages out on its own.
func (s *Service) Revoke(ctx context.Context, raw, reason string) error {
	claims, err := s.parse(raw)
	if err != nil {
		return err
	}
	if claims.ExpiresAt == nil {
		return fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	err = retry.Do(ctx, storeRetryAttempts, storeRetryDelay, retryableStoreErr, func() error {
		return s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time, reason)
	})
	if err != nil {
		if errors.Is(err, revocation.ErrUnavailable) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}
	obs.TokenRevoked()
	return nil
}

// parse checks the signature and issuer only. Expiry and the rest of the
// claim set are validated separately against the service clock.
func (s *Service) parse(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrInvalidToken, claims.Issuer)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: incomplete claims", ErrInvalidToken)
	}
	return &claims, nil
}

func (s *Service) isRevoked(ctx context.Context, tokenID string) (bool, error) {
	var revoked bool
	err := retry.Do(ctx, storeRetryAttempts, storeRetryDelay, retryableStoreErr, func() error {
		var err error
		revoked, err = s.revoked.IsRevoked(ctx, tokenID)
		return err
	})
	if err != nil {
		if errors.Is(err, revocation.ErrUnavailable) {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return false, err
	}
	return revoked, nil
}

func retryableStoreErr(err error) bool {
	return errors.Is(err, revocation.ErrUnavailable) || errors.Is(err, roles.ErrUnavailable)
}

func verifyResult(err error) string {
	switch {
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrRevoked):
		return "revoked"
	case errors.Is(err, ErrWrongKind):
		return "wrong_kind"
	case errors.Is(err, ErrUnknownRole):
		return "unknown_role"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "invalid"
	}
}
