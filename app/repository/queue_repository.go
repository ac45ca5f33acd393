package repository

import (
	"context"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueueRepository reads and prunes the job queue's Redis keys for the admin area.
type QueueRepository interface {
	GetValue(ctx context.Context, key string) (string, error)
	GetTTL(ctx context.Context, key string) (time.Duration, error)
	GetListLength(ctx context.Context, key string) (int64, error)
	FindKeysByPatterns(ctx context.Context, patterns []string) ([]string, error)
	DeleteKey(ctx context.Context, key string) (int64, error)
}

type queueRepository struct {
	client *redis.Client
}

func NewQueueRepository(client *redis.Client) QueueRepository {
	return &queueRepository{client: client}
}

func (r *queueRepository) GetValue(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *queueRepository) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return -1, err
	}
	return ttl, nil
}

func (r *queueRepository) GetListLength(ctx context.Context, key string) (int64, error) {
	return r.client.LLen(ctx, key).Result()
}

// FindKeysByPatterns retrieves keys for the provided Redis match patterns using SCAN.
func (r *queueRepository) FindKeysByPatterns(ctx context.Context, patterns []string) ([]string, error) {
	uniqueKeys := make(map[string]struct{})

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		var cursor uint64
		for {
			keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 500).Result()
			if err != nil {
				return nil, err
			}
			for _, key := range keys {
				uniqueKeys[key] = struct{}{}
			}
			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
	}

	keys := make([]string, 0, len(uniqueKeys))
	for key := range uniqueKeys {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *queueRepository) DeleteKey(ctx context.Context, key string) (int64, error) {
	return r.client.Del(ctx, key).Result()
}
