package revocation

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the deny-list in process memory. Used by tests and by
// dev mode when neither Redis nor Postgres is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// MemoryOption configures MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]Record),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Revoke(_ context.Context, tokenID string, expiresAt time.Time, reason string) error {
	key := HashTokenID(tokenID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[key]; ok {
		return nil
	}
	s.records[key] = Record{
		TokenHash: key,
		Reason:    reason,
		RevokedAt: s.now().UTC(),
		ExpiresAt: expiresAt.UTC(),
	}
	return nil
}

func (s *MemoryStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	key := HashTokenID(tokenID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key]
	return ok, nil
}

func (s *MemoryStore) CleanupExpired(_ context.Context) (int, error) {
	now := s.now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted := 0
	for key, rec := range s.records {
		if !rec.ExpiresAt.After(now) {
			delete(s.records, key)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	now := s.now().UTC()
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := Stats{Total: len(s.records)}
	for _, rec := range s.records {
		if rec.ExpiresAt.After(now) {
			stats.Active++
		} else {
			stats.Expired++
		}
	}
	return stats, nil
}
