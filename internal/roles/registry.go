package roles

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Registry provides role management and permission resolution on top of a
// Store. It is stateless; all durable state lives in the store, so a single
// Registry value is safe for concurrent use.
type Registry struct {
	store Store
	now   func() time.Time
}

// RegistryOption configures Registry behavior.
type RegistryOption func(*Registry)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) RegistryOption {
	return func(r *Registry) {
		if fn != nil {
			r.now = fn
		}
	}
}

// NewRegistry constructs a Registry.
func NewRegistry(store Store, opts ...RegistryOption) (*Registry, error) {
	if store == nil {
		return nil, errors.New("roles: store is required")
	}
	r := &Registry{store: store, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CreateRole registers a new role. Every inherited name must refer to an
// existing active role.
func (r *Registry) CreateRole(ctx context.Context, name, description string, permissions, inherited []string, priority int) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	inherited = dedupe(inherited)
	if err := r.checkInherited(ctx, inherited, name); err != nil {
		return nil, err
	}

	now := r.now().UTC()
	role := &Role{
		Name:           name,
		Description:    strings.TrimSpace(description),
		Permissions:    dedupe(permissions),
		InheritedRoles: inherited,
		IsActive:       true,
		Priority:       priority,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.store.Create(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// GetRole returns a role by name.
func (r *Registry) GetRole(ctx context.Context, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return r.store.Find(ctx, name)
}

// ListRoles returns every role, active or not, ordered by priority then name.
func (r *Registry) ListRoles(ctx context.Context) ([]*Role, error) {
	list, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].Name < list[j].Name
	})
	return list, nil
}

// UpdateRole applies an in-place mutation. Newly referenced inherited roles
// must exist and be active.
func (r *Registry) UpdateRole(ctx context.Context, name string, upd Update) (*Role, error) {
	role, err := r.GetRole(ctx, name)
	if err != nil {
		return nil, err
	}
	if upd.InheritedRoles != nil {
		inherited := dedupe(upd.InheritedRoles)
		if err := r.checkInherited(ctx, inherited, role.Name); err != nil {
			return nil, err
		}
		role.InheritedRoles = inherited
	}
	if upd.Permissions != nil {
		role.Permissions = dedupe(upd.Permissions)
	}
	if upd.Description != nil {
		role.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Priority != nil {
		role.Priority = *upd.Priority
	}
	role.UpdatedAt = r.now().UTC()
	if err := r.store.Update(ctx, role); err != nil {
		return nil, err
	}
	return role, nil
}

// ActivateRole marks a role active again.
func (r *Registry) ActivateRole(ctx context.Context, name string) error {
	return r.setActive(ctx, name, true)
}

// DeactivateRole retires a role without deleting it. Tokens already issued
// for the role keep verifying; new issuance is refused.
func (r *Registry) DeactivateRole(ctx context.Context, name string) error {
	return r.setActive(ctx, name, false)
}

func (r *Registry) setActive(ctx context.Context, name string, active bool) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return r.store.SetActive(ctx, name, active)
}

// DeleteRole removes a role permanently. Refused while any role still
// inherits from it; deactivate instead.
func (r *Registry) DeleteRole(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	referrers, err := r.store.Referencing(ctx, name)
	if err != nil {
		return err
	}
	if len(referrers) > 0 {
		return fmt.Errorf("%w: %s inherited by %s", ErrRoleInUse, name, strings.Join(referrers, ", "))
	}
	return r.store.Delete(ctx, name)
}

// Resolve computes the effective permission set for a role: its direct
// permissions unioned with those of every transitively inherited role. The
// walk carries a visited set so it terminates on any graph, including one
// with an accidental inheritance cycle. Inactive roles still contribute;
// active-ness is an issuance-time check only.
func (r *Registry) Resolve(ctx context.Context, roleName string) (map[string]struct{}, error) {
	roleName = strings.TrimSpace(roleName)
	if roleName == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	root, err := r.store.Find(ctx, roleName)
	if err != nil {
		return nil, err
	}

	perms := make(map[string]struct{})
	visited := map[string]struct{}{root.Name: {}}
	stack := []*Role{root}
	for len(stack) > 0 {
		role := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range role.Permissions {
			perms[p] = struct{}{}
		}
		for _, parent := range role.InheritedRoles {
			if _, ok := visited[parent]; ok {
				continue
			}
			visited[parent] = struct{}{}
			next, err := r.store.Find(ctx, parent)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					// Dangling edge; contributes nothing.
					continue
				}
				return nil, err
			}
			stack = append(stack, next)
		}
	}
	return perms, nil
}

// ResolveForSubject resolves the bound role of a principal.
func (r *Registry) ResolveForSubject(ctx context.Context, subject string) (string, map[string]struct{}, error) {
	binding, err := r.store.BindingFor(ctx, subject)
	if err != nil {
		return "", nil, err
	}
	perms, err := r.Resolve(ctx, binding.RoleName)
	if err != nil {
		return "", nil, err
	}
	return binding.RoleName, perms, nil
}

// AssignRole binds a principal to a role, replacing any prior binding. The
// target role must exist and be active.
func (r *Registry) AssignRole(ctx context.Context, subject, roleName string) (*Binding, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	role, err := r.GetRole(ctx, roleName)
	if err != nil {
		return nil, err
	}
	if !role.IsActive {
		return nil, fmt.Errorf("%w: role %q is inactive", ErrInvalidInput, role.Name)
	}
	now := r.now().UTC()
	binding := &Binding{Subject: subject, RoleName: role.Name, CreatedAt: now, UpdatedAt: now}
	if err := r.store.Bind(ctx, binding); err != nil {
		return nil, err
	}
	return binding, nil
}

// UnassignRole drops a principal's role binding. Removing a binding that
// does not exist is a no-op.
func (r *Registry) UnassignRole(ctx context.Context, subject string) error {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	return r.store.RemoveBinding(ctx, subject)
}

// RoleFor returns the role currently bound to a principal.
func (r *Registry) RoleFor(ctx context.Context, subject string) (*Role, error) {
	binding, err := r.store.BindingFor(ctx, subject)
	if err != nil {
		return nil, err
	}
	return r.store.Find(ctx, binding.RoleName)
}

// EnsureDefaults seeds the built-in user and admin roles. Safe to run on
// every startup.
func (r *Registry) EnsureDefaults(ctx context.Context) error {
	defaults := []struct {
		name        string
		description string
		permissions []string
		inherited   []string
		priority    int
	}{
		{RoleUser, "Base role for every principal", []string{PermRead}, nil, 10},
		{RoleAdmin, "Administrative role", []string{PermWrite, PermManageRoles, PermManagePrincipals, PermManageRevocations}, []string{RoleUser}, 1},
	}
	for _, d := range defaults {
		if _, err := r.CreateRole(ctx, d.name, d.description, d.permissions, d.inherited, d.priority); err != nil {
			if errors.Is(err, ErrDuplicateRole) {
				continue
			}
			return err
		}
	}
	return nil
}

func (r *Registry) checkInherited(ctx context.Context, inherited []string, self string) error {
	for _, name := range inherited {
		if name == self {
			return fmt.Errorf("%w: role cannot inherit itself", ErrInvalidInput)
		}
		parent, err := r.store.Find(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("%w: %s", ErrUnknownInheritedRole, name)
			}
			return err
		}
		if !parent.IsActive {
			return fmt.Errorf("%w: %s is inactive", ErrUnknownInheritedRole, name)
		}
	}
	return nil
}

// SortedPermissions flattens a permission set for serialization.
func SortedPermissions(perms map[string]struct{}) []string {
	out := make([]string, 0, len(perms))
	for k := range perms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
