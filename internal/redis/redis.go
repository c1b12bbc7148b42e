package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hydrowave/internal/models"

	"github.com/redis/go-redis/v9"
)

// Cached state snapshots expire if a device stops reporting.
const stateTTL = time.Hour

// NewRedisClient creates a Redis client.
func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func stateKey(deviceID string) string {
	return fmt.Sprintf("device:%s:state", deviceID)
}

// SaveState caches a device's latest evaluation snapshot so async
// workers evaluate against the same state the contact carried.
func SaveState(ctx context.Context, client *redis.Client, deviceID string, state models.SystemState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return client.Set(ctx, stateKey(deviceID), raw, stateTTL).Err()
}

// LoadState fetches the cached snapshot. The second return value is
// false when no snapshot exists.
func LoadState(ctx context.Context, client *redis.Client, deviceID string) (models.SystemState, bool, error) {
	raw, err := client.Get(ctx, stateKey(deviceID)).Result()
	if err == redis.Nil {
		return models.SystemState{}, false, nil
	}
	if err != nil {
		return models.SystemState{}, false, err
	}
	var state models.SystemState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return models.SystemState{}, false, err
	}
	return state, true, nil
}
