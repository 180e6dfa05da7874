package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyStore caches checkout state by client supplied key.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	// Reserve stores value only if key is unused and reports whether it did.
	Reserve(ctx context.Context, key string, value []byte) (bool, error)
}

type redisIdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisIdempotencyStore(client *redis.Client, ttl time.Duration) IdempotencyStore {
	return &redisIdempotencyStore{client: client, ttl: ttl}
}

func (s *redisIdempotencyStore) key(k string) string {
	return "idem:checkout:" + k
}

func (s *redisIdempotencyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *redisIdempotencyStore) Save(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

func (s *redisIdempotencyStore) Reserve(ctx context.Context, key string, value []byte) (bool, error) {
	return s.client.SetNX(ctx, s.key(key), value, s.ttl).Result()
}
