package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache key prefixes. Writers invalidate by prefix.
const (
	KeyCompanion  = "companion"
	KeyCategories = "categories"
)

// GetJSON retrieves a cached value and unmarshals it into dest.
// Returns false on a miss or a decode failure.
func (r *Redis) GetJSON(ctx context.Context, key string, dest interface{}) bool {
	raw, err := r.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), dest) == nil
}

// SetJSON marshals value and stores it with the given TTL.
func (r *Redis) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.Set(ctx, key, data, ttl)
}

// Key joins a prefix and identifier into a cache key.
func Key(prefix, id string) string {
	return prefix + ":" + id
}
