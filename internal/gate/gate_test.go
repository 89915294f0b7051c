package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"tokengate.org/internal/revocation"
	"tokengate.org/internal/roles"
	"tokengate.org/internal/token"
)

func newTestGate(t *testing.T) (*Gate, *token.Service) {
	t.Helper()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	reg, err := roles.NewRegistry(roles.NewMemoryStore(), roles.WithClock(clock))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if err := reg.EnsureDefaults(context.Background()); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	svc, err := token.NewService([]byte("test-secret"), reg,
		revocation.NewMemoryStore(revocation.WithClock(clock)), token.WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(svc), svc
}

func TestGateAllowsPermittedCaller(t *testing.T) {
	g, svc := newTestGate(t)
	ctx := context.Background()

	raw, _, err := svc.IssueAccessToken(ctx, "a@x.com", roles.RoleUser)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	claims, err := g.AuthenticateAndAuthorize(ctx, raw, roles.PermRead)
	if err != nil {
		t.Fatalf("AuthenticateAndAuthorize: %v", err)
	}
	if claims.Subject != "a@x.com" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestGateForbidsMissingPermission(t *testing.T) {
	g, svc := newTestGate(t)
	ctx := context.Background()

	raw, _, err := svc.IssueAccessToken(ctx, "a@x.com", roles.RoleUser)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	_, err = g.AuthenticateAndAuthorize(ctx, raw, roles.PermManageRoles)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("forbidden must not double as unauthenticated")
	}
}

func TestGateCollapsesTokenVerdicts(t *testing.T) {
	g, svc := newTestGate(t)
	ctx := context.Background()

	raw, _, err := svc.IssueAccessToken(ctx, "a@x.com", roles.RoleUser)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}
	if err := svc.Revoke(ctx, raw, "logout"); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	for _, tc := range []struct {
		name string
		raw  string
	}{
		{"empty token", ""},
		{"garbage token", "not-a-jwt"},
		{"revoked token", raw},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.AuthenticateAndAuthorize(ctx, tc.raw, roles.PermRead)
			if !errors.Is(err, ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestGatePassesThroughStoreOutage(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	reg, err := roles.NewRegistry(roles.NewMemoryStore(), roles.WithClock(clock))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	ctx := context.Background()
	if err := reg.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	healthy := revocation.NewMemoryStore()
	svc, err := token.NewService([]byte("test-secret"), reg, healthy, token.WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	raw, _, err := svc.IssueAccessToken(ctx, "a@x.com", roles.RoleUser)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	broken, err := token.NewService([]byte("test-secret"), reg, downStore{}, token.WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	g := New(broken)
	_, err = g.AuthenticateAndAuthorize(ctx, raw, roles.PermRead)
	if !errors.Is(err, token.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable passthrough, got %v", err)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("store outage must not read as an auth verdict")
	}
}

type downStore struct{}

func (downStore) Revoke(context.Context, string, time.Time, string) error {
	return revocation.ErrUnavailable
}
func (downStore) IsRevoked(context.Context, string) (bool, error) {
	return false, revocation.ErrUnavailable
}
func (downStore) CleanupExpired(context.Context) (int, error) {
	return 0, revocation.ErrUnavailable
}
func (downStore) Stats(context.Context) (revocation.Stats, error) {
	return revocation.Stats{}, revocation.ErrUnavailable
}

func TestGatePassesThroughRoleStoreOutage(t *testing.T) {
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	reg, err := roles.NewRegistry(roles.NewMemoryStore(), roles.WithClock(clock))
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	ctx := context.Background()
	if err := reg.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	revoked := revocation.NewMemoryStore()
	svc, err := token.NewService([]byte("test-secret"), reg, revoked, token.WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	raw, _, err := svc.IssueAccessToken(ctx, "a@x.com", roles.RoleUser)
	if err != nil {
		t.Fatalf("IssueAccessToken: %v", err)
	}

	downReg, err := roles.NewRegistry(downRoleStore{}, roles.WithClock(clock))
	if err != nil {
		t.Fatalf("NewRegistry down: %v", err)
	}
	broken, err := token.NewService([]byte("test-secret"), downReg, revoked, token.WithClock(clock))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	g := New(broken)
	_, err = g.AuthenticateAndAuthorize(ctx, raw, roles.PermRead)
	if !errors.Is(err, token.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable passthrough, got %v", err)
	}
	if errors.Is(err, ErrUnauthenticated) {
		t.Fatal("role store outage must not read as an auth verdict")
	}
}

// downRoleStore simulates an unreachable role backend.
type downRoleStore struct{}

func (downRoleStore) Create(context.Context, *roles.Role) error { return roles.ErrUnavailable }
func (downRoleStore) Find(context.Context, string) (*roles.Role, error) {
	return nil, roles.ErrUnavailable
}
func (downRoleStore) List(context.Context) ([]*roles.Role, error) {
	return nil, roles.ErrUnavailable
}
func (downRoleStore) Update(context.Context, *roles.Role) error     { return roles.ErrUnavailable }
func (downRoleStore) SetActive(context.Context, string, bool) error { return roles.ErrUnavailable }
func (downRoleStore) Delete(context.Context, string) error          { return roles.ErrUnavailable }
func (downRoleStore) Referencing(context.Context, string) ([]string, error) {
	return nil, roles.ErrUnavailable
}
func (downRoleStore) Bind(context.Context, *roles.Binding) error { return roles.ErrUnavailable }
func (downRoleStore) BindingFor(context.Context, string) (*roles.Binding, error) {
	return nil, roles.ErrUnavailable
}
func (downRoleStore) RemoveBinding(context.Context, string) error { return roles.ErrUnavailable }

func TestClaimsContextRoundtrip(t *testing.T) {
	ctx := context.Background()
	if got := SubjectFromContext(ctx); got != "" {
		t.Fatalf("anonymous context should have empty subject, got %q", got)
	}

	claims := &token.Claims{}
	claims.Subject = "a@x.com"
	ctx = ContextWithClaims(ctx, claims)

	got, ok := ClaimsFromContext(ctx)
	if !ok || got.Subject != "a@x.com" {
		t.Fatalf("claims not recovered from context: %v %v", got, ok)
	}
	if SubjectFromContext(ctx) != "a@x.com" {
		t.Fatal("SubjectFromContext mismatch")
	}
}
