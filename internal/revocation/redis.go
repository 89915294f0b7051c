package revocation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "revoked:"

var _ Store = (*RedisStore)(nil)

// RedisStore implements Store on Redis. Records are written with a native
// TTL equal to the token's remaining lifetime, so expiry is handled by the
// backend and CleanupExpired is only a safety net.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// RedisOption configures RedisStore.
type RedisOption func(*RedisStore)

// WithRedisClock overrides the time source (useful for tests).
func WithRedisClock(fn func() time.Time) RedisOption {
	return func(s *RedisStore) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time, reason string) error {
	now := s.now().UTC()
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		// Already expired; verification rejects it on expiry alone.
		return nil
	}
	rec := Record{
		TokenHash: HashTokenID(tokenID),
		Reason:    reason,
		RevokedAt: now,
		ExpiresAt: expiresAt.UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	// SETNX keeps the first record; re-revoking is a no-op.
	if err := s.client.SetNX(ctx, redisKeyPrefix+rec.TokenHash, data, ttl).Err(); err != nil {
		return wrapRedisErr(err)
	}
	return nil
}

func (s *RedisStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.client.Exists(ctx, redisKeyPrefix+HashTokenID(tokenID)).Result()
	if err != nil {
		return false, wrapRedisErr(err)
	}
	return n > 0, nil
}

// CleanupExpired walks the key space and deletes records whose recorded
// expiry has passed. Redis TTLs normally remove them first; this catches
// records written by another backend or with drifted clocks.
func (s *RedisStore) CleanupExpired(ctx context.Context) (int, error) {
	now := s.now().UTC()
	deleted := 0
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return deleted, wrapRedisErr(err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		if !rec.ExpiresAt.After(now) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return deleted, wrapRedisErr(err)
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, wrapRedisErr(err)
	}
	return deleted, nil
}

func (s *RedisStore) Stats(ctx context.Context) (Stats, error) {
	now := s.now().UTC()
	var stats Stats
	iter := s.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return Stats{}, wrapRedisErr(err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			continue
		}
		stats.Total++
		if rec.ExpiresAt.After(now) {
			stats.Active++
		} else {
			stats.Expired++
		}
	}
	if err := iter.Err(); err != nil {
		return Stats{}, wrapRedisErr(err)
	}
	return stats, nil
}

func wrapRedisErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
