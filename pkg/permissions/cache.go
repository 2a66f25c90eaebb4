// Package permissions implements the permission decision engine: verdict
// cache, record lookup, condition evaluation and the static fallback matrix.
package permissions

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/agentdist/dataguard/pkg/models"
)

// verdictKeyPrefix namespaces verdict keys in a shared Redis instance.
const verdictKeyPrefix = "dataguard:verdict:"

// CachedVerdict is the compact cache value for a (service, table, operation)
// key. DENIED verdicts are cached too, so services with no grant do not hit
// the store on every call.
type CachedVerdict struct {
	Level      models.PermissionLevel `json:"level"`
	Conditions []string               `json:"conditions,omitempty"`
}

// VerdictCache is the read-through cache in front of the permission store.
// Implementations must treat their own failures as cache misses: a broken
// cache degrades to store lookups, it never decides.
type VerdictCache interface {
	Get(ctx context.Context, key string) (*CachedVerdict, bool)
	Set(ctx context.Context, key string, v CachedVerdict)
	Invalidate(ctx context.Context, keys ...string)
}

// redisVerdictCache backs the verdict cache with Redis so all instances of a
// service share one verdict per key.
type redisVerdictCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisVerdictCache creates a Redis-backed verdict cache with the given TTL.
func NewRedisVerdictCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) VerdictCache {
	return &redisVerdictCache{
		client: client,
		ttl:    ttl,
		logger: logger.Named("verdict-cache"),
	}
}

var _ VerdictCache = (*redisVerdictCache)(nil)

func (c *redisVerdictCache) Get(ctx context.Context, key string) (*CachedVerdict, bool) {
	data, err := c.client.Get(ctx, verdictKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Verdict cache read failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var v CachedVerdict
	if err := json.Unmarshal(data, &v); err != nil {
		c.logger.Warn("Corrupt verdict cache entry, treating as miss",
			zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &v, true
}

func (c *redisVerdictCache) Set(ctx context.Context, key string, v CachedVerdict) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, verdictKeyPrefix+key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("Verdict cache write failed",
			zap.String("key", key), zap.Error(err))
	}
}

func (c *redisVerdictCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = verdictKeyPrefix + k
	}
	if err := c.client.Del(ctx, prefixed...).Err(); err != nil {
		c.logger.Warn("Verdict cache invalidation failed",
			zap.Strings("keys", keys), zap.Error(err))
	}
}

// memoryVerdictCache is the in-process fallback used when Redis is not
// configured. Entries expire lazily on read.
type memoryVerdictCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]memoryEntry
}

type memoryEntry struct {
	verdict   CachedVerdict
	expiresAt time.Time
}

// NewMemoryVerdictCache creates an in-process verdict cache with the given TTL.
func NewMemoryVerdictCache(ttl time.Duration) VerdictCache {
	return &memoryVerdictCache{
		ttl:     ttl,
		entries: make(map[string]memoryEntry),
	}
}

var _ VerdictCache = (*memoryVerdictCache)(nil)

func (c *memoryVerdictCache) Get(_ context.Context, key string) (*CachedVerdict, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	v := entry.verdict
	return &v, true
}

func (c *memoryVerdictCache) Set(_ context.Context, key string, v CachedVerdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{verdict: v, expiresAt: time.Now().Add(c.ttl)}
}

func (c *memoryVerdictCache) Invalidate(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

// NewVerdictCache picks the Redis cache when a client is available and the
// in-process cache otherwise, mirroring the optional Redis configuration.
func NewVerdictCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) VerdictCache {
	if client == nil {
		return NewMemoryVerdictCache(ttl)
	}
	return NewRedisVerdictCache(client, ttl, logger)
}
