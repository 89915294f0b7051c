package roles

import "errors"

var (
	ErrNotFound             = errors.New("roles: role not found")
	ErrDuplicateRole        = errors.New("roles: role already exists")
	ErrUnknownInheritedRole = errors.New("roles: unknown inherited role")
	ErrRoleInUse            = errors.New("roles: role is inherited by other roles")
	ErrInvalidInput         = errors.New("roles: invalid input")
	ErrBindingNotFound      = errors.New("roles: no role bound to principal")
	ErrUnavailable          = errors.New("roles: store unavailable")
)
