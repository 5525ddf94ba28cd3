package dedup

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces dedup keys.
const DefaultRedisPrefix = "chatrelay:dedup:"

// RedisOptions configures NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore keeps records as expiring Redis keys. Expiry is handled by
// Redis, so Prune has nothing to do.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	closed atomic.Bool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreFromClient(rdb, opts.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client. The store closes it on Close.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Claim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	if s.closed.Load() {
		return false, ErrClosed
	}
	ok, err := s.rdb.SetNX(ctx, s.prefix+key, string(StateProcessing), lease).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, retention time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.rdb.Set(ctx, s.prefix+key, string(StateProcessed), retention).Err(); err != nil {
		return fmt.Errorf("dedup complete: %w", err)
	}
	return nil
}

func (s *RedisStore) Prune(ctx context.Context) (int64, error) {
	if s.closed.Load() {
		return 0, ErrClosed
	}
	return 0, nil
}

// State returns the live state of key, if any.
func (s *RedisStore) State(ctx context.Context, key string) (State, bool, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("dedup state: %w", err)
	}
	return State(v), true, nil
}

func (s *RedisStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.rdb.Close()
}
