package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configura la conexión a Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
	Prefix   string
}

// RedisStore implementa ports.ViewStore sobre Redis. La expiración la
// gestiona el propio Redis (SET con TTL).
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore conecta y verifica la conexión con PING.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "buylist"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache.NewRedisStore: ping %s: %w", cfg.Addr, err)
	}

	return &RedisStore{client: client, prefix: cfg.Prefix}, nil
}

// Close cierra la conexión.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) GetView(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.wrapKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache.RedisStore.GetView: %w", err)
	}
	return data, true, nil
}

func (r *RedisStore) SetView(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.wrapKey(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("cache.RedisStore.SetView: %w", err)
	}
	return nil
}

func (r *RedisStore) DeleteView(ctx context.Context, key string) error {
	if err := r.client.Unlink(ctx, r.wrapKey(key)).Err(); err != nil {
		return fmt.Errorf("cache.RedisStore.DeleteView: %w", err)
	}
	return nil
}

// DeleteViewPrefix recorre las claves con SCAN y las borra con UNLINK.
func (r *RedisStore) DeleteViewPrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, r.wrapKey(prefix)+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("cache.RedisStore.DeleteViewPrefix: scan: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Unlink(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache.RedisStore.DeleteViewPrefix: unlink: %w", err)
	}
	return nil
}

func (r *RedisStore) wrapKey(key string) string {
	return r.prefix + ":" + key
}
