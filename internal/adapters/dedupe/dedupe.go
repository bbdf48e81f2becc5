// Package dedupe implements the idempotency cache used to short-circuit
// redelivered JobBus messages (spec.md §7 "at-least-once delivery;
// handlers must be idempotent"). Grounded on
// internal/orchestrator/dedupe.go's RedisDedupeStore (Get/Set with TTL,
// redis.Nil -> empty-string miss).
package dedupe

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Store is a minimal Redis-backed idempotency cache: Seen records a
// correlation key the first time it's observed and reports whether it was
// already present, so callers can skip reprocessing a redelivered message.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to addr and pings it to validate the connection, mirroring
// NewRedisDedupeStore.
func New(addr string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("dedupe: redis ping: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}, nil
}

// Seen reports whether key was already marked, marking it as a side
// effect when it was not. A false result means the caller should proceed;
// true means this is a redelivery and the caller may skip reprocessing.
func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe: setnx %q: %w", key, err)
	}
	return !ok, nil
}

// Close releases the underlying Redis client.
func (s *Store) Close() error { return s.client.Close() }
