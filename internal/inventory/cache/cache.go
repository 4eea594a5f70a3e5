// Package cache keeps a short-lived Redis copy of shard-summed availability
// for read-only display. The reservation path never consults it: exact
// decisions re-read the shards inside their own transaction.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-reservations/internal/models"

	"github.com/go-redis/redis/v8"
)

// RedisClient is the slice of go-redis this cache needs; *redis.Client
// satisfies it, and tests substitute an in-memory fake.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type AvailabilityCache struct {
	Client RedisClient
	TTL    time.Duration
}

func New(client RedisClient, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{Client: client, TTL: ttl}
}

func availabilityKey(eventID, tierID string) string {
	return fmt.Sprintf("availability:%s:%s", eventID, tierID)
}

// Get returns the cached availability for a tier and whether it was present.
// A Redis error is returned so callers can log it, but they are expected to
// fall through to the shard store either way.
func (c *AvailabilityCache) Get(ctx context.Context, eventID, tierID string) (models.TierAvailability, bool, error) {
	val, err := c.Client.Get(ctx, availabilityKey(eventID, tierID)).Result()
	if err == redis.Nil {
		return models.TierAvailability{}, false, nil
	}
	if err != nil {
		return models.TierAvailability{}, false, err
	}

	var avail models.TierAvailability
	if err := json.Unmarshal([]byte(val), &avail); err != nil {
		// Treat a corrupt entry as a miss; it will be overwritten.
		return models.TierAvailability{}, false, nil
	}
	return avail, true, nil
}

// Set stores availability with the cache TTL. Best effort.
func (c *AvailabilityCache) Set(ctx context.Context, eventID, tierID string, avail models.TierAvailability) error {
	data, err := json.Marshal(avail)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, availabilityKey(eventID, tierID), string(data), c.TTL).Err()
}
