// Package store persists profile and follow-set snapshots so a restarted
// engine can warm its caches before the relays answer.
package store

import (
	"context"
	"log/slog"
	"time"
)

// Backend defines the interface for key/value persistence implementations
type Backend interface {
	// Get retrieves a value
	// Returns (value, found, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL (0 = no expiry)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value
	Delete(ctx context.Context, key string) error

	// GetMultiple retrieves multiple values
	// Returns a map of found keys to values
	GetMultiple(ctx context.Context, keys []string) (map[string][]byte, error)

	// SetMultiple stores multiple values with the given TTL
	SetMultiple(ctx context.Context, items map[string][]byte, ttl time.Duration) error

	// Close releases the backend
	Close() error
}

// Open returns a redis backend when cfg.RedisURL is set and reachable, and a
// memory backend otherwise. The second result names the backend in use.
func Open(ctx context.Context, cfg Config) (Backend, string) {
	if cfg.RedisURL != "" {
		slog.Info("initializing Redis store")
		backend, err := NewRedisBackend(ctx, cfg.RedisURL, cfg.Prefix)
		if err == nil {
			slog.Info("Redis store initialized")
			return backend, "redis"
		}
		slog.Warn("Redis connection failed, using memory store", "error", err)
	}
	return NewMemoryBackend(cfg.MemoryMaxKeys), "memory"
}
