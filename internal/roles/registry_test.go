package roles

import (
	"context"
	"errors"
	"testing"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestCreateRoleRejectsDuplicates(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.CreateRole(ctx, "viewer", "", []string{"read"}, nil, 0); err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	_, err := reg.CreateRole(ctx, "viewer", "", nil, nil, 0)
	if !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}
}

func TestCreateRoleRejectsUnknownInheritedRole(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.CreateRole(ctx, "editor", "", []string{"write"}, []string{"ghost"}, 0)
	if !errors.Is(err, ErrUnknownInheritedRole) {
		t.Fatalf("expected ErrUnknownInheritedRole, got %v", err)
	}
}

func TestCreateRoleRejectsInactiveInheritedRole(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.CreateRole(ctx, "base", "", []string{"read"}, nil, 0); err != nil {
		t.Fatalf("CreateRole base: %v", err)
	}
	if err := reg.DeactivateRole(ctx, "base"); err != nil {
		t.Fatalf("DeactivateRole: %v", err)
	}
	_, err := reg.CreateRole(ctx, "editor", "", nil, []string{"base"}, 0)
	if !errors.Is(err, ErrUnknownInheritedRole) {
		t.Fatalf("expected ErrUnknownInheritedRole for inactive parent, got %v", err)
	}
}

func TestResolveUnionsInheritedPermissions(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustCreate(t, reg, "user", []string{"read"}, nil)
	mustCreate(t, reg, "editor", []string{"write"}, []string{"user"})
	mustCreate(t, reg, "admin", []string{"admin"}, []string{"editor"})

	perms, err := reg.Resolve(ctx, "admin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, want := range []string{"read", "write", "admin"} {
		if _, ok := perms[want]; !ok {
			t.Fatalf("expected %q in resolved set %v", want, SortedPermissions(perms))
		}
	}
	if len(perms) != 3 {
		t.Fatalf("unexpected extra permissions: %v", SortedPermissions(perms))
	}
}

func TestResolveTerminatesOnCycle(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustCreate(t, reg, "a", []string{"read"}, nil)
	mustCreate(t, reg, "b", []string{"write"}, []string{"a"})

	// Close the cycle behind the registry's back.
	if _, err := reg.UpdateRole(ctx, "a", Update{InheritedRoles: []string{"b"}}); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}

	perms, err := reg.Resolve(ctx, "a")
	if err != nil {
		t.Fatalf("Resolve on cyclic graph: %v", err)
	}
	got := SortedPermissions(perms)
	if len(got) != 2 || got[0] != "read" || got[1] != "write" {
		t.Fatalf("expected fixed point {read, write}, got %v", got)
	}
}

func TestResolveUnknownRole(t *testing.T) {
	reg := newTestRegistry(t)
	if _, err := reg.Resolve(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRoleRefusedWhileReferenced(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustCreate(t, reg, "user", []string{"read"}, nil)
	mustCreate(t, reg, "admin", []string{"write"}, []string{"user"})

	err := reg.DeleteRole(ctx, "user")
	if !errors.Is(err, ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse, got %v", err)
	}

	if err := reg.DeleteRole(ctx, "admin"); err != nil {
		t.Fatalf("DeleteRole admin: %v", err)
	}
	if err := reg.DeleteRole(ctx, "user"); err != nil {
		t.Fatalf("DeleteRole user after admin removed: %v", err)
	}
}

func TestDeactivateDoesNotAffectResolution(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustCreate(t, reg, "user", []string{"read"}, nil)
	mustCreate(t, reg, "admin", []string{"write"}, []string{"user"})
	if err := reg.DeactivateRole(ctx, "admin"); err != nil {
		t.Fatalf("DeactivateRole: %v", err)
	}

	perms, err := reg.Resolve(ctx, "admin")
	if err != nil {
		t.Fatalf("Resolve after deactivation: %v", err)
	}
	if _, ok := perms["write"]; !ok {
		t.Fatalf("deactivated role lost its permissions: %v", SortedPermissions(perms))
	}
}

func TestAssignRoleReplacesPriorBinding(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustCreate(t, reg, "user", []string{"read"}, nil)
	mustCreate(t, reg, "admin", []string{"write"}, []string{"user"})

	if _, err := reg.AssignRole(ctx, "a@x.com", "user"); err != nil {
		t.Fatalf("AssignRole user: %v", err)
	}
	if _, err := reg.AssignRole(ctx, "a@x.com", "admin"); err != nil {
		t.Fatalf("AssignRole admin: %v", err)
	}

	role, err := reg.RoleFor(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("RoleFor: %v", err)
	}
	if role.Name != "admin" {
		t.Fatalf("expected binding replaced with admin, got %s", role.Name)
	}
}

func TestUnassignRoleDropsBinding(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustCreate(t, reg, "user", []string{"read"}, nil)
	if _, err := reg.AssignRole(ctx, "a@x.com", "user"); err != nil {
		t.Fatalf("AssignRole: %v", err)
	}
	if err := reg.UnassignRole(ctx, "a@x.com"); err != nil {
		t.Fatalf("UnassignRole: %v", err)
	}
	if _, err := reg.RoleFor(ctx, "a@x.com"); !errors.Is(err, ErrBindingNotFound) {
		t.Fatalf("expected ErrBindingNotFound, got %v", err)
	}

	// Unassigning again is a no-op.
	if err := reg.UnassignRole(ctx, "a@x.com"); err != nil {
		t.Fatalf("second UnassignRole: %v", err)
	}
}

func TestAssignRoleRefusesInactiveRole(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	mustCreate(t, reg, "user", []string{"read"}, nil)
	if err := reg.DeactivateRole(ctx, "user"); err != nil {
		t.Fatalf("DeactivateRole: %v", err)
	}
	if _, err := reg.AssignRole(ctx, "a@x.com", "user"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for inactive role, got %v", err)
	}
}

func TestEnsureDefaultsIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults: %v", err)
	}
	if err := reg.EnsureDefaults(ctx); err != nil {
		t.Fatalf("EnsureDefaults second run: %v", err)
	}

	perms, err := reg.Resolve(ctx, RoleAdmin)
	if err != nil {
		t.Fatalf("Resolve admin: %v", err)
	}
	if _, ok := perms[PermRead]; !ok {
		t.Fatalf("admin should inherit %q from user: %v", PermRead, SortedPermissions(perms))
	}
	if _, ok := perms[PermWrite]; !ok {
		t.Fatalf("admin should hold %q directly: %v", PermWrite, SortedPermissions(perms))
	}
}

func mustCreate(t *testing.T, reg *Registry, name string, perms, inherited []string) {
	t.Helper()
	if _, err := reg.CreateRole(context.Background(), name, "", perms, inherited, 0); err != nil {
		t.Fatalf("CreateRole %s: %v", name, err)
	}
}
