package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/saaskit/internal/pkg/env"
)

var (
	client *redis.Client
	ctx    = context.Background()
)

// Redis logical databases. 0 holds the job queue, pub/sub and cache keys.
const (
	DBDefault = 0
	DBSession = 1
	DBOAuth   = 2
	DBLimiter = 3
)

// SetupCache connects the shared Redis client.
func SetupCache() {
	client = redis.NewClient(&redis.Options{
		Addr:     Addr(),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       DBDefault,
	})

	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] could not connect to redis at %s: %v", Addr(), err)
	} else {
		log.Infof("[Cache] connected to redis: %s", pong)
	}
}

// Addr is host:port from CACHE_HOST / CACHE_PORT.
func Addr() string {
	return fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379"))
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// SetClient swaps the shared client; tests point it at miniredis.
func SetClient(c *redis.Client) {
	client = c
}

// Set stores a value in the cache with the given key and expiration time
func Set(key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// Delete removes a value from the cache by key
func Delete(key string) error {
	return GetClient().Del(ctx, key).Err()
}
