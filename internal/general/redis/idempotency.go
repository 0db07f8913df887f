package redis

import (
	"context"
	"fmt"
	"time"

	"fleettrack/internal/general/config"

	goredis "github.com/redis/go-redis/v9"
)

const keyPrefix = "fleettrack:idem:"

// IdempotencyStore reserves client-supplied idempotency keys in Redis so a
// retried command submission maps back to the command it already created.
// The unique column on commands.idempotency_key remains the durable
// backstop; this store only makes the common replay path cheap.
type IdempotencyStore struct {
	rdb *goredis.Client
}

// NewIdempotencyStore connects a Redis-backed store.
func NewIdempotencyStore(cfg *config.Config) *IdempotencyStore {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return &IdempotencyStore{rdb: rdb}
}

// NewIdempotencyStoreWithClient wraps an existing client; used by tests.
func NewIdempotencyStoreWithClient(rdb *goredis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

// Ping verifies connectivity with a bounded timeout.
func (s *IdempotencyStore) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.rdb.Ping(pingCtx).Err()
}

// Close releases the underlying connection pool.
func (s *IdempotencyStore) Close() error {
	return s.rdb.Close()
}

// Reserve atomically claims key for commandID. When the key is already
// claimed, the stored command id is returned with reserved=false and no
// state changes.
func (s *IdempotencyStore) Reserve(ctx context.Context, key, commandID string, ttl time.Duration) (string, bool, error) {
	full := keyPrefix + key

	ok, err := s.rdb.SetNX(ctx, full, commandID, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("redis: reserve idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	existing, err := s.rdb.Get(ctx, full).Result()
	if err == goredis.Nil {
		// the holder expired between SetNX and Get; treat as a fresh
		// reservation attempt lost to a concurrent caller
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: read idempotency key: %w", err)
	}
	return existing, false, nil
}

// Release drops a reservation; used when the reserved submission failed
// before a command row was written, so a retry can claim the key again.
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, keyPrefix+key).Err()
}
