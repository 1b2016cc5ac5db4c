package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisDayKeyPart    = "usage:"
	redisRequestsField = "requests:"
	redisFailedField   = "failed:"
)

// RedisStore keeps one hash per UTC day holding request and failure
// counters per feature. Individual entries are not retained.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a counter store. Day hashes expire after
// retentionDays (plus one day of slack) when retentionDays > 0.
func NewRedisStore(client *redis.Client, prefix string, retentionDays int) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	var ttl time.Duration
	if retentionDays > 0 {
		ttl = time.Duration(retentionDays+1) * 24 * time.Hour
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func redisDayKey(prefix string, day time.Time) string {
	return prefix + redisDayKeyPart + day.UTC().Format(dateLayout)
}

// WriteBatch increments the counters for every entry in one pipeline.
func (s *RedisStore) WriteBatch(ctx context.Context, entries []*UsageEntry) error {
	if len(entries) == 0 {
		return nil
	}

	touched := make(map[string]struct{})
	pipe := s.client.Pipeline()
	for _, e := range entries {
		key := redisDayKey(s.prefix, e.Timestamp)
		touched[key] = struct{}{}
		pipe.HIncrBy(ctx, key, redisRequestsField+e.Feature, 1)
		if !e.Succeeded() {
			pipe.HIncrBy(ctx, key, redisFailedField+e.Feature, 1)
		}
	}
	if s.ttl > 0 {
		for key := range touched {
			pipe.Expire(ctx, key, s.ttl)
		}
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment usage counters: %w", err)
	}
	return nil
}

// Flush is a no-op for Redis as writes are synchronous.
func (s *RedisStore) Flush(_ context.Context) error {
	return nil
}

// Close is a no-op; the client belongs to the storage layer.
func (s *RedisStore) Close() error {
	return nil
}
