package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisStorage struct {
	nullBackends
	client *redis.Client
	prefix string
}

// NewRedis connects to Redis using a redis:// or rediss:// URL.
func NewRedis(ctx context.Context, cfg RedisConfig) (Storage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("Redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStorage{client: client, prefix: normalizePrefix(cfg.KeyPrefix)}, nil
}

// normalizePrefix returns prefix ending in ':' or the default when blank.
func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return DefaultConfig().Redis.KeyPrefix
	}
	if !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return prefix
}

func (s *redisStorage) Type() string {
	return TypeRedis
}

func (s *redisStorage) RedisClient() *redis.Client {
	return s.client
}

// KeyPrefix returns the namespace applied to every key.
func (s *redisStorage) KeyPrefix() string {
	return s.prefix
}

func (s *redisStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// RedisKeyPrefix returns the key prefix of a Redis storage, or the default
// prefix for any other backend.
func RedisKeyPrefix(s Storage) string {
	if r, ok := s.(interface{ KeyPrefix() string }); ok {
		return r.KeyPrefix()
	}
	return DefaultConfig().Redis.KeyPrefix
}
