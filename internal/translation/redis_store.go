package translation

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares translations between worker replicas.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// NewRedisStore stores entries under prefix+key.
func NewRedisStore(client redis.Cmdable, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// Get returns the cached value, ok=false on a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set stores value with the given lifetime.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.prefix+key, value, ttl).Err()
}
