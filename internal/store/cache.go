// Package store caches per-project snapshot data so navigation between
// projects does not refetch collections that are known fresh. Redis when
// available, in-memory kv fallback otherwise.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/postline/postline-backend/internal/metrics"
	"github.com/postline/postline-backend/pkg/kv"
	memkv "github.com/postline/postline-backend/pkg/kv/memory"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Cache struct {
	// client serves all operations when Redis is reachable.
	client *redis.Client
	// kvStore and pubsubHub take over when it is not.
	kvStore   kv.Store
	pubsubHub *PubSubHub

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewCache(addr string, logger *zap.SugaredLogger, metrics *metrics.Metrics) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warnw("Redis unavailable; using in-memory snapshot cache", "error", err)
		}
		return &Cache{
			kvStore:   memkv.NewStore(),
			pubsubHub: NewPubSubHub(),
			logger:    logger,
			metrics:   metrics,
		}, nil
	}

	return &Cache{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Cache key prefixes.
const (
	KeySnapshot = "pl:snapshot" // pl:snapshot:<project>:<category>
	KeyNotes    = "pl:notes"    // pl:notes:<project>
	KeyEvents   = "pl:events"   // pubsub channel per project
)

// ErrCacheMiss is returned when a key is absent or expired.
var ErrCacheMiss = fmt.Errorf("cache miss")

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				if c.metrics != nil {
					c.metrics.RecordCacheMiss(ctx, key)
				}
				return ErrCacheMiss
			}
			if c.logger != nil {
				c.logger.Errorw("Cache get error", "key", key, "error", err)
			}
			return fmt.Errorf("cache get error: %w", err)
		}
		if c.metrics != nil {
			c.metrics.RecordCacheHit(ctx, key)
		}
		if err := json.Unmarshal([]byte(val), dest); err != nil {
			return fmt.Errorf("cache unmarshal error: %w", err)
		}
		return nil
	}

	data, err := c.kvStore.Get(ctx, key)
	if err != nil {
		if err == kv.ErrNotFound {
			if c.metrics != nil {
				c.metrics.RecordCacheMiss(ctx, key)
			}
			return ErrCacheMiss
		}
		return fmt.Errorf("cache get error: %w", err)
	}
	if c.metrics != nil {
		c.metrics.RecordCacheHit(ctx, key)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache set error", "key", key, "error", err)
			}
			return fmt.Errorf("cache set error: %w", err)
		}
		return nil
	}
	if err := c.kvStore.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
			}
			return fmt.Errorf("cache delete error: %w", err)
		}
		return nil
	}
	if _, err := c.kvStore.Del(ctx, keys...); err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if c.client != nil {
		count, err := c.client.Exists(ctx, key).Result()
		if err != nil {
			return false, fmt.Errorf("cache exists error: %w", err)
		}
		return count > 0, nil
	}
	count, err := c.kvStore.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache exists error: %w", err)
	}
	return count > 0, nil
}

// Snapshot helpers. Category is one of the refresh categories
// (published/scheduled/system).

func snapshotKey(projectID, category string) string {
	return fmt.Sprintf("%s:%s:%s", KeySnapshot, projectID, category)
}

func (c *Cache) GetSnapshot(ctx context.Context, projectID, category string, dest interface{}) error {
	return c.Get(ctx, snapshotKey(projectID, category), dest)
}

func (c *Cache) SetSnapshot(ctx context.Context, projectID, category string, value interface{}, ttl time.Duration) error {
	return c.Set(ctx, snapshotKey(projectID, category), value, ttl)
}

func (c *Cache) GetNotes(ctx context.Context, projectID string, dest interface{}) error {
	return c.Get(ctx, fmt.Sprintf("%s:%s", KeyNotes, projectID), dest)
}

func (c *Cache) SetNotes(ctx context.Context, projectID string, value interface{}, ttl time.Duration) error {
	return c.Set(ctx, fmt.Sprintf("%s:%s", KeyNotes, projectID), value, ttl)
}

// InvalidateProject drops every cached category for the project.
func (c *Cache) InvalidateProject(ctx context.Context, projectID string) error {
	keys := []string{
		snapshotKey(projectID, "published"),
		snapshotKey(projectID, "scheduled"),
		snapshotKey(projectID, "system"),
		fmt.Sprintf("%s:%s", KeyNotes, projectID),
	}
	return c.Delete(ctx, keys...)
}

// EventChannel is the pubsub channel carrying engine change events for a
// project.
func EventChannel(projectID string) string {
	return fmt.Sprintf("%s:%s", KeyEvents, projectID)
}

// Publish fans a message out on the channel, over Redis or the in-memory hub.
func (c *Cache) Publish(ctx context.Context, channel string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("pubsub marshal error: %w", err)
	}

	if c.client != nil {
		if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Publish error", "channel", channel, "error", err)
			}
			return fmt.Errorf("pubsub publish error: %w", err)
		}
		return nil
	}

	if c.pubsubHub != nil {
		c.pubsubHub.Publish(channel, string(data))
	}
	return nil
}

// Subscribe returns a Redis subscription, or nil in in-memory mode; callers
// then use SubscribeInMemory.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	if c.client != nil {
		return c.client.Subscribe(ctx, channels...)
	}
	return nil
}

// SubscribeInMemory subscribes via the in-memory hub.
func (c *Cache) SubscribeInMemory(ctx context.Context, channels ...string) *Subscription {
	if c.pubsubHub != nil {
		return c.pubsubHub.Subscribe(ctx, channels...)
	}
	return nil
}

// IsInMemoryMode reports whether the cache runs without Redis.
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	return nil
}

func (c *Cache) Close() error {
	var err error
	if c.client != nil {
		err = c.client.Close()
	}
	if c.kvStore != nil {
		if closeErr := c.kvStore.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}
