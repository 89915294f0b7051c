// Package roles holds the role registry and the permission resolver: role
// definitions, their inheritance edges, and the per-principal role binding.
package roles

import "time"

// Role is a named bundle of permissions. A role's effective permission set
// is its direct permissions unioned with those of every role it inherits
// from, transitively.
type Role struct {
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	Permissions    []string  `json:"permissions"`
	InheritedRoles []string  `json:"inherited_roles,omitempty"`
	IsActive       bool      `json:"is_active"`
	Priority       int       `json:"priority"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Binding maps a principal to its single active role.
type Binding struct {
	Subject   string    `json:"subject"`
	RoleName  string    `json:"role_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Update describes an in-place role mutation. Nil fields are left untouched.
type Update struct {
	Description    *string
	Permissions    []string
	InheritedRoles []string
	Priority       *int
}

// Well-known permission keys seeded at bootstrap.
const (
	PermRead              = "read"
	PermWrite             = "write"
	PermManageRoles       = "roles.manage"
	PermManagePrincipals  = "principals.manage"
	PermManageRevocations = "revocations.manage"
)

// Default roles created by EnsureDefaults. Every principal starts as "user";
// "admin" inherits it.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
