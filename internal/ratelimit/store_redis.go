package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisBucketStore implements BucketStore on a Redis sorted set per key,
// scored by request time, so the window is shared across instances.
type RedisBucketStore struct {
	client *redis.Client
}

// NewRedisBucketStore creates a Redis-backed bucket store.
func NewRedisBucketStore(client *redis.Client) *RedisBucketStore {
	return &RedisBucketStore{client: client}
}

var _ BucketStore = (*RedisBucketStore)(nil)

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := time.Now()
	cutoff := now.Add(-window)
	redisKey := "ratelimit:" + key

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", cutoff.UnixNano()))
	count := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("count rate limit window: %w", err)
	}

	if int(count.Val()) >= limit {
		return &Result{
			Allowed: false,
			Limit:   limit,
			ResetAt: now.Add(window),
		}, nil
	}

	pipe = s.client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("record rate limit hit: %w", err)
	}

	return &Result{
		Allowed:   true,
		Remaining: limit - int(count.Val()) - 1,
		Limit:     limit,
		ResetAt:   now.Add(window),
	}, nil
}
