package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/facetsearch/internal/domain"
	"github.com/utafrali/facetsearch/pkg/logger"
)

const (
	keyPrefix  = "schema:"
	listKey    = keyPrefix + "__all__"
	DefaultTTL = 5 * time.Minute
)

// Cache stores encoded schemas by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisCache implements Cache on Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new Redis-backed cache.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get fetches key. A miss returns ok=false and no error.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

// Set stores value under key with ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes keys.
func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache implements Cache in process.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty in-process cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

// CachedRegistry is a read-through cache in front of another Registry.
// Not-found results are never cached. Cache failures degrade to reading the
// underlying registry.
type CachedRegistry struct {
	next   Registry
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedRegistry wraps next with cache.
func NewCachedRegistry(next Registry, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedRegistry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedRegistry{next: next, cache: cache, ttl: ttl, logger: logger}
}

// GetSchema returns the cached schema for slug, loading it on a miss.
func (r *CachedRegistry) GetSchema(ctx context.Context, slug string) (*domain.CategorySchema, error) {
	key := keyPrefix + slug
	var cached domain.CategorySchema
	if r.load(ctx, key, &cached) {
		return &cached, nil
	}

	s, err := r.next.GetSchema(ctx, slug)
	if err != nil {
		return nil, err
	}
	r.store(ctx, key, s)
	return s, nil
}

// ListSchemas returns the cached schema list, loading it on a miss.
func (r *CachedRegistry) ListSchemas(ctx context.Context) ([]domain.CategorySchema, error) {
	var cached []domain.CategorySchema
	if r.load(ctx, listKey, &cached) {
		return cached, nil
	}

	schemas, err := r.next.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}
	r.store(ctx, listKey, schemas)
	return schemas, nil
}

// Invalidate drops the cached entry for slug and the cached list. An empty
// slug drops only the list.
func (r *CachedRegistry) Invalidate(ctx context.Context, slug string) error {
	keys := []string{listKey}
	if slug != "" {
		keys = append(keys, keyPrefix+slug)
	}
	return r.cache.Delete(ctx, keys...)
}

func (r *CachedRegistry) load(ctx context.Context, key string, dst any) bool {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		logger.WithContext(ctx, r.logger).WarnContext(ctx, "schema cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		logger.WithContext(ctx, r.logger).WarnContext(ctx, "discarding undecodable schema cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return true
}

func (r *CachedRegistry) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data, r.ttl); err != nil {
		logger.WithContext(ctx, r.logger).WarnContext(ctx, "schema cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
