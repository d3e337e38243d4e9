package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns the Redis address string.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NewRedisClient creates a new Redis client and verifies the connection.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}

// RedisBackend shares one session between every client pointed at the same
// Redis keys. Batches run inside MULTI/EXEC.
type RedisBackend struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewRedisBackend creates a Redis-backed session backend. A zero ttl keeps keys
// until they are deleted.
func NewRedisBackend(client redis.Cmdable, ttl time.Duration) *RedisBackend {
	return &RedisBackend{
		client: client,
		ttl:    ttl,
	}
}

// Get reads key from Redis.
func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := b.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

// Apply writes the batch in a single transaction.
func (b *RedisBackend) Apply(ctx context.Context, set map[string]string, del []string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(del) > 0 {
			pipe.Del(ctx, del...)
		}
		for k, v := range set {
			pipe.Set(ctx, k, v, b.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis apply session batch: %w", err)
	}
	return nil
}
