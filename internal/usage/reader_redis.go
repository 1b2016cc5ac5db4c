package usage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisReader implements UsageReader over the day hashes written by RedisStore.
type RedisReader struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisReader creates a new Redis usage reader.
func NewRedisReader(client *redis.Client, prefix string) (*RedisReader, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &RedisReader{client: client, prefix: prefix, now: time.Now}, nil
}

// maxEnumeratedDays bounds how many day keys dayKeys builds without asking
// Redis which days exist.
const maxEnumeratedDays = 366

// dayKeys lists the hash keys covering params. Ranges of up to
// maxEnumeratedDays are enumerated; an open start or a wider range scans for
// stored days inside the bounds. An open end stops at today.
func (r *RedisReader) dayKeys(ctx context.Context, params UsageQueryParams) ([]string, error) {
	from, to := timeBounds(params)
	if to.IsZero() {
		to = truncateDay(r.now()).AddDate(0, 0, 1)
	}

	if !from.IsZero() && !to.After(from.AddDate(0, 0, maxEnumeratedDays)) {
		var keys []string
		for day := from; day.Before(to); day = day.AddDate(0, 0, 1) {
			keys = append(keys, redisDayKey(r.prefix, day))
		}
		return keys, nil
	}

	// Open or wide ranges only look at day keys that exist.
	var keys []string
	pattern := r.prefix + redisDayKeyPart + "*"
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		day, err := time.Parse(dateLayout, strings.TrimPrefix(key, r.prefix+redisDayKeyPart))
		if err != nil || day.Before(from) || !day.Before(to) {
			continue
		}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan usage keys: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// counters sums requests and failures per feature across the range.
func (r *RedisReader) counters(ctx context.Context, params UsageQueryParams) (requests, failed map[string]int64, err error) {
	keys, err := r.dayKeys(ctx, params)
	if err != nil {
		return nil, nil, err
	}

	pipe := r.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.HGetAll(ctx, key)
	}
	if len(keys) > 0 {
		if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
			return nil, nil, fmt.Errorf("failed to read usage counters: %w", err)
		}
	}

	requests = make(map[string]int64)
	failed = make(map[string]int64)
	for _, cmd := range cmds {
		for field, raw := range cmd.Val() {
			n, convErr := strconv.ParseInt(raw, 10, 64)
			if convErr != nil {
				continue
			}
			switch {
			case strings.HasPrefix(field, redisRequestsField):
				requests[strings.TrimPrefix(field, redisRequestsField)] += n
			case strings.HasPrefix(field, redisFailedField):
				failed[strings.TrimPrefix(field, redisFailedField)] += n
			}
		}
	}
	return requests, failed, nil
}

func (r *RedisReader) GetSummary(ctx context.Context, params UsageQueryParams) (*UsageSummary, error) {
	requests, failed, err := r.counters(ctx, params)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{}
	for _, n := range requests {
		summary.TotalRequests += n
	}
	for _, n := range failed {
		summary.FailedRequests += n
	}
	summary.SuccessfulRequests = summary.TotalRequests - summary.FailedRequests
	return summary, nil
}

func (r *RedisReader) GetFeatureUsage(ctx context.Context, params UsageQueryParams) ([]FeatureUsage, error) {
	requests, _, err := r.counters(ctx, params)
	if err != nil {
		return nil, err
	}

	result := make([]FeatureUsage, 0, len(requests))
	for feature, n := range requests {
		result = append(result, FeatureUsage{Feature: feature, Requests: n})
	}
	sortFeatureUsage(result)
	return result, nil
}
