package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/medquill/medquill/pipeline/pkg/models"
)

// RedisCache backs the response cache with Redis for multi-instance
// deployments. SET NX keeps concurrent identical writes at-most-once
// effective; all errors degrade to a miss.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects a cache to the given Redis address.
func NewRedisCache(addr, password string, db int) *RedisCache {
	return &RedisCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Ping verifies the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get fetches and decodes a cached response.
func (c *RedisCache) Get(ctx context.Context, key string) (*models.AIInvocationResponse, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Warn().Err(err).Msg("Response cache read failed, treating as miss")
		}
		return nil, false
	}

	var resp models.AIInvocationResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Warn().Err(err).Msg("Response cache entry undecodable, treating as miss")
		return nil, false
	}
	return &resp, true
}

// Set stores the response with the given TTL. First writer wins.
func (c *RedisCache) Set(ctx context.Context, key string, resp *models.AIInvocationResponse, ttl time.Duration) {
	raw, err := json.Marshal(resp)
	if err != nil {
		log.Warn().Err(err).Msg("Response cache encode failed, skipping write")
		return
	}
	if err := c.client.SetNX(ctx, key, raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Response cache write failed")
	}
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
