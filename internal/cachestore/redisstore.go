package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lumapics/gallery-backend/internal/adapter"
	"github.com/lumapics/gallery-backend/internal/logger"
)

// RedisStore persists each cache key as one Redis string value. A single SET
// is atomic on the server, so readers never observe a partial write; the
// keyed mutex keeps same-key writes from this process in order.
type RedisStore struct {
	client adapter.RedisClient
	prefix string
	writes *keyedMutex
}

// NewRedisStore returns a store backed by the given Redis client. All keys
// are namespaced under prefix.
func NewRedisStore(client adapter.RedisClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "gallery-cache"
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		writes: newKeyedMutex(),
	}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + ":" + SanitizeKey(key)
}

// Get reads the envelope stored under key. A missing key, corrupt payload or
// format version mismatch all count as a miss.
func (s *RedisStore) Get(ctx context.Context, key string) (*Envelope, error) {
	raw, err := s.client.Get(ctx, s.redisKey(key))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache key: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		logger.WarnCtx(ctx, "corrupt cache value, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, nil
	}

	if env.FormatVersion != FormatVersion {
		logger.InfoCtx(ctx, "cache format version mismatch, treating as miss",
			zap.String("key", key),
			zap.Int("stored", env.FormatVersion),
			zap.Int("expected", FormatVersion))
		return nil, nil
	}

	return &env, nil
}

// Set replaces the value under key with one atomic SET
func (s *RedisStore) Set(ctx context.Context, key string, data interface{}, timestamp time.Time) error {
	raw, err := encode(data, timestamp)
	if err != nil {
		return fmt.Errorf("failed to serialize cache envelope: %w", err)
	}

	unlock := s.writes.Lock(key)
	defer unlock()

	if err := s.client.Set(ctx, s.redisKey(key), raw); err != nil {
		return fmt.Errorf("failed to write cache key: %w", err)
	}
	return nil
}

// Delete removes the value under key
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	unlock := s.writes.Lock(key)
	defer unlock()

	if err := s.client.Del(ctx, s.redisKey(key)); err != nil {
		return fmt.Errorf("failed to delete cache key: %w", err)
	}
	return nil
}

// Exists reports whether a value is stored under key
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.client.Exists(ctx, s.redisKey(key))
	if err != nil {
		return false, fmt.Errorf("failed to check cache key: %w", err)
	}
	return ok, nil
}
