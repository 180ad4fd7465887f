package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store represents a shared cache interface used across the application.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// SetJSON stores v encoded as JSON.
func SetJSON(ctx context.Context, store Store, key string, v any, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, payload, ttl)
}

// GetJSON decodes the JSON value stored under key into v.
func GetJSON(ctx context.Context, store Store, key string, v any) (bool, error) {
	payload, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return false, err
	}
	return true, nil
}
