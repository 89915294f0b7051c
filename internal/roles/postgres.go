package roles

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL. Permission and inheritance
// sets are stored as JSONB columns.
type PGStore struct {
	db *sql.DB
}

// NewPGStore wraps an open database handle.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, role *Role) error {
	perms, inherited, err := encodeSets(role)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into roles (name, description, permissions, inherited_roles, is_active, priority, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, role.Name, role.Description, perms, inherited, role.IsActive, role.Priority, role.CreatedAt, role.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateRole, role.Name)
		}
		return classify(err)
	}
	return nil
}

func (s *PGStore) Find(ctx context.Context, name string) (*Role, error) {
	row := s.db.QueryRowContext(ctx, `
		select name, description, permissions, inherited_roles, is_active, priority, created_at, updated_at
		from roles where name = $1
	`, name)
	role, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, classify(err)
	}
	return role, nil
}

func (s *PGStore) List(ctx context.Context) ([]*Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select name, description, permissions, inherited_roles, is_active, priority, created_at, updated_at
		from roles order by priority, name
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var result []*Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, classify(err)
		}
		result = append(result, role)
	}
	return result, classify(rows.Err())
}

func (s *PGStore) Update(ctx context.Context, role *Role) error {
	perms, inherited, err := encodeSets(role)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		update roles
		set description = $2, permissions = $3, inherited_roles = $4, priority = $5, updated_at = $6
		where name = $1
	`, role.Name, role.Description, perms, inherited, role.Priority, role.UpdatedAt)
	if err != nil {
		return classify(err)
	}
	return requireRow(res, role.Name)
}

func (s *PGStore) SetActive(ctx context.Context, name string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`update roles set is_active = $2, updated_at = now() where name = $1`, name, active)
	if err != nil {
		return classify(err)
	}
	return requireRow(res, name)
}

func (s *PGStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from roles where name = $1`, name)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
			return fmt.Errorf("%w: %s", ErrRoleInUse, name)
		}
		return classify(err)
	}
	return requireRow(res, name)
}

func (s *PGStore) Referencing(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`select name from roles where inherited_roles @> jsonb_build_array($1::text) order by name`, name)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var referrers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, classify(err)
		}
		referrers = append(referrers, n)
	}
	return referrers, classify(rows.Err())
}

func (s *PGStore) Bind(ctx context.Context, binding *Binding) error {
	_, err := s.db.ExecContext(ctx, `
		insert into principal_roles (subject, role_name, created_at, updated_at)
		values ($1, $2, $3, $4)
		on conflict (subject) do update
		set role_name = excluded.role_name, updated_at = excluded.updated_at
	`, binding.Subject, binding.RoleName, binding.CreatedAt, binding.UpdatedAt)
	return classify(err)
}

func (s *PGStore) BindingFor(ctx context.Context, subject string) (*Binding, error) {
	var b Binding
	err := s.db.QueryRowContext(ctx, `
		select subject, role_name, created_at, updated_at
		from principal_roles where subject = $1
	`, subject).Scan(&b.Subject, &b.RoleName, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrBindingNotFound, subject)
	}
	if err != nil {
		return nil, classify(err)
	}
	return &b, nil
}

func (s *PGStore) RemoveBinding(ctx context.Context, subject string) error {
	_, err := s.db.ExecContext(ctx, `delete from principal_roles where subject = $1`, subject)
	return classify(err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*Role, error) {
	var (
		role      Role
		perms     []byte
		inherited []byte
	)
	if err := row.Scan(&role.Name, &role.Description, &perms, &inherited,
		&role.IsActive, &role.Priority, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return nil, err
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return nil, fmt.Errorf("decode permissions: %w", err)
		}
	}
	if len(inherited) > 0 {
		if err := json.Unmarshal(inherited, &role.InheritedRoles); err != nil {
			return nil, fmt.Errorf("decode inherited_roles: %w", err)
		}
	}
	return &role, nil
}

func encodeSets(role *Role) ([]byte, []byte, error) {
	perms, err := json.Marshal(emptyIfNil(role.Permissions))
	if err != nil {
		return nil, nil, fmt.Errorf("encode permissions: %w", err)
	}
	inherited, err := json.Marshal(emptyIfNil(role.InheritedRoles))
	if err != nil {
		return nil, nil, fmt.Errorf("encode inherited_roles: %w", err)
	}
	return perms, inherited, nil
}

func emptyIfNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func requireRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classify(err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

// classify folds backend failures into ErrUnavailable so callers never
// mistake a down store for a missing record. Only rows-not-found and the
// constraint violations call sites map keep their shape.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation, pgErrForeignKeyViolation:
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
