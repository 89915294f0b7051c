package roles

import "context"

// Store describes persistence operations required by the role registry.
// Implementations map backend failures to the package sentinels; a store
// that cannot be reached reports ErrUnavailable, never ErrNotFound.
type Store interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
	SetActive(ctx context.Context, name string, active bool) error
	Delete(ctx context.Context, name string) error

	// Referencing returns the names of roles whose inheritance list contains
	// name. Used as the delete guard.
	Referencing(ctx context.Context, name string) ([]string, error)

	// Bind upserts the single role binding for a subject.
	Bind(ctx context.Context, binding *Binding) error
	BindingFor(ctx context.Context, subject string) (*Binding, error)
	RemoveBinding(ctx context.Context, subject string) error
}
