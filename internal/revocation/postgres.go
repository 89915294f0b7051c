package revocation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store on Postgres. Unlike the Redis backend there is no
// native TTL, so CleanupExpired is the primary expiry mechanism here.
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

func (s *PGStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time, reason string) error {
	const q = `
insert into revoked_tokens (token_hash, reason, revoked_at, expires_at)
values ($1, $2, $3, $4)
on conflict (token_hash) do nothing`
	_, err := s.db.ExecContext(ctx, q,
		HashTokenID(tokenID), reason, s.now().UTC(), expiresAt.UTC())
	if err != nil {
		return classify(err)
	}
	return nil
}

func (s *PGStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	const q = `select exists (select 1 from revoked_tokens where token_hash = $1)`
	var revoked bool
	if err := s.db.QueryRowContext(ctx, q, HashTokenID(tokenID)).Scan(&revoked); err != nil {
		return false, classify(err)
	}
	return revoked, nil
}

func (s *PGStore) CleanupExpired(ctx context.Context) (int, error) {
	const q = `delete from revoked_tokens where expires_at <= $1`
	res, err := s.db.ExecContext(ctx, q, s.now().UTC())
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(err)
	}
	return int(n), nil
}

func (s *PGStore) Stats(ctx context.Context) (Stats, error) {
	const q = `
select count(*),
       count(*) filter (where expires_at > $1),
       count(*) filter (where expires_at <= $1)
from revoked_tokens`
	var stats Stats
	err := s.db.QueryRowContext(ctx, q, s.now().UTC()).
		Scan(&stats.Total, &stats.Active, &stats.Expired)
	if err != nil {
		return Stats{}, classify(err)
	}
	return stats, nil
}

// classify folds every backend failure into ErrUnavailable. The deny-list
// has no constraint violations callers could act on, so there is nothing
// finer to report.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
