package tokenstore

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores the token under a fixed key in Redis.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend builds a backend using the shared client.
func NewRedisBackend(client *redis.Client, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

func (r *RedisBackend) Name() string { return "redis" }

func (r *RedisBackend) Get(ctx context.Context) (string, error) {
	if r.client == nil {
		return "", ErrBackendUnavailable
	}
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return val, err
}

func (r *RedisBackend) Set(ctx context.Context, token string) error {
	if r.client == nil {
		return ErrBackendUnavailable
	}
	return r.client.Set(ctx, r.key, token, 0).Err()
}

func (r *RedisBackend) Delete(ctx context.Context) error {
	if r.client == nil {
		return ErrBackendUnavailable
	}
	return r.client.Del(ctx, r.key).Err()
}
