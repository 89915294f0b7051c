package principal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"tokengate.org/internal/ids"
)

const pgErrUniqueViolation = "23505"

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db  *sql.DB
	now func() time.Time
}

// PGOption configures PGStore.
type PGOption func(*PGStore)

// WithPGClock overrides the time source (useful for tests).
func WithPGClock(fn func() time.Time) PGOption {
	return func(s *PGStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewPGStore wraps an existing database handle.
func NewPGStore(db *sql.DB, opts ...PGOption) *PGStore {
	s := &PGStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const principalColumns = `id, email, username, password_hash, status, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, p *Principal) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	now := s.now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`insert into principals (id, email, username, password_hash, status, created_at, updated_at)
		 values ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, normalizeEmail(p.Email), p.Username, p.PasswordHash, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	return classifyPG(err)
}

func (s *PGStore) Find(ctx context.Context, id string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where id = $1`, id)
	return scanPrincipal(row)
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+principalColumns+` from principals where email = $1`, normalizeEmail(email))
	return scanPrincipal(row)
}

func (s *PGStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set password_hash = $2, updated_at = $3 where id = $1`,
		id, passwordHash, s.now().UTC())
	if err != nil {
		return classifyPG(err)
	}
	return requireRow(res)
}

func (s *PGStore) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`update principals set status = $2, updated_at = $3 where id = $1`,
		id, status, s.now().UTC())
	if err != nil {
		return classifyPG(err)
	}
	return requireRow(res)
}

func (s *PGStore) List(ctx context.Context) ([]*Principal, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+principalColumns+` from principals order by email`)
	if err != nil {
		return nil, classifyPG(err)
	}
	defer rows.Close()

	var res []*Principal
	for rows.Next() {
		var p Principal
		if err := rows.Scan(&p.ID, &p.Email, &p.Username, &p.PasswordHash,
			&p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, classifyPG(err)
		}
		res = append(res, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPG(err)
	}
	return res, nil
}

func scanPrincipal(row *sql.Row) (*Principal, error) {
	var p Principal
	err := row.Scan(&p.ID, &p.Email, &p.Username, &p.PasswordHash,
		&p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, classifyPG(err)
	}
	return &p, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return classifyPG(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// classifyPG folds backend failures into ErrUnavailable. The only domain
// error Postgres signals for this table is a duplicate email.
func classifyPG(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation {
		return ErrDuplicateEmail
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
