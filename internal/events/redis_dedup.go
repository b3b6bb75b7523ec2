package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pitabwire/util"
	"github.com/redis/go-redis/v9"
)

// dedupKeyPrefix namespaces deduplication keys in a shared Redis.
const dedupKeyPrefix = "flowforge:dedup:"

// BackendType selects a deduplication backend.
type BackendType string

// Backend types.
const (
	BackendMemory BackendType = "memory"
	BackendRedis  BackendType = "redis"
)

// NewDeduplicationStore creates the store selected by backend. Memory is
// the default for single-instance deployments; Redis is required when more
// than one worker consumes the intake queue. A non-positive ttl falls back
// to the default.
func NewDeduplicationStore(ctx context.Context, backend BackendType, redisURL string, ttl time.Duration) (DeduplicationStore, error) {
	log := util.Log(ctx)

	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	switch backend {
	case BackendRedis:
		if redisURL == "" {
			return nil, errors.New("redis URL required when using redis backend")
		}
		store, err := NewRedisDeduplicationStore(ctx, redisURL, ttl)
		if err != nil {
			return nil, err
		}
		log.Debug("using redis deduplication backend", "ttl", ttl.String())
		return store, nil
	case BackendMemory, "":
		log.Debug("using in-memory deduplication backend", "ttl", ttl.String())
		store := NewInMemoryDeduplicationStore()
		store.ttl = ttl
		return store, nil
	default:
		return nil, fmt.Errorf("unknown deduplication backend: %s", backend)
	}
}

// RedisDeduplicationStore implements DeduplicationStore over Redis with
// TTL-based expiry.
type RedisDeduplicationStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduplicationStore creates and pings a Redis-backed store.
func NewRedisDeduplicationStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisDeduplicationStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultDedupTTL
	}

	return &RedisDeduplicationStore{client: client, ttl: ttl}, nil
}

// MarkProcessed implements DeduplicationStore.
func (s *RedisDeduplicationStore) MarkProcessed(ctx context.Context, messageID string, runID RunID) error {
	return s.client.Set(ctx, dedupKeyPrefix+messageID, runID.String(), s.ttl).Err()
}

// IsProcessed implements DeduplicationStore.
func (s *RedisDeduplicationStore) IsProcessed(ctx context.Context, messageID string) (bool, error) {
	count, err := s.client.Exists(ctx, dedupKeyPrefix+messageID).Result()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Cleanup implements DeduplicationStore. Redis expires entries itself, so
// there is nothing to remove here.
func (s *RedisDeduplicationStore) Cleanup(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}

// Close implements DeduplicationStore.
func (s *RedisDeduplicationStore) Close() error {
	return s.client.Close()
}
