// Package kv defines the minimal key-value contract the snapshot cache needs
// when Redis is unavailable.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is not found or has expired.
var ErrNotFound = errors.New("not found")

// Store is a TTL-aware byte store.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
