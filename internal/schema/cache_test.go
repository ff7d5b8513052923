package schema

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/facetsearch/internal/domain"
)

type countingRegistry struct {
	Registry
	gets  int
	lists int
}

func (c *countingRegistry) GetSchema(ctx context.Context, slug string) (*domain.CategorySchema, error) {
	c.gets++
	return c.Registry.GetSchema(ctx, slug)
}

func (c *countingRegistry) ListSchemas(ctx context.Context) ([]domain.CategorySchema, error) {
	c.lists++
	return c.Registry.ListSchemas(ctx)
}

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("cache down")
}
func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("cache down")
}
func (failingCache) Delete(context.Context, ...string) error { return nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newCounting(t *testing.T) *countingRegistry {
	t.Helper()
	reg, err := Parse([]byte(testCatalog))
	require.NoError(t, err)
	return &countingRegistry{Registry: reg}
}

func setupRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client), mr
}

func TestCachedRegistry_RedisReadThrough(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupRedisCache(t)
	next := newCounting(t)
	reg := NewCachedRegistry(next, cache, time.Minute, discardLogger())

	for i := 0; i < 3; i++ {
		s, err := reg.GetSchema(ctx, "mobiles")
		require.NoError(t, err)
		assert.Equal(t, "cat-mobiles", s.ID)
		require.Len(t, s.Attributes, 2)
	}

	assert.Equal(t, 1, next.gets)
	assert.True(t, mr.Exists("schema:mobiles"))

	mr.FastForward(2 * time.Minute)
	_, err := reg.GetSchema(ctx, "mobiles")
	require.NoError(t, err)
	assert.Equal(t, 2, next.gets)
}

func TestCachedRegistry_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	cache, mr := setupRedisCache(t)
	next := newCounting(t)
	reg := NewCachedRegistry(next, cache, time.Minute, discardLogger())

	for i := 0; i < 2; i++ {
		_, err := reg.GetSchema(ctx, "does-not-exist")
		assert.ErrorIs(t, err, domain.ErrCategoryNotFound)
	}
	assert.Equal(t, 2, next.gets)
	assert.False(t, mr.Exists("schema:does-not-exist"))
}

func TestCachedRegistry_Invalidate(t *testing.T) {
	ctx := context.Background()
	next := newCounting(t)
	reg := NewCachedRegistry(next, NewMemoryCache(), time.Minute, discardLogger())

	_, err := reg.GetSchema(ctx, "laptops")
	require.NoError(t, err)
	_, err = reg.ListSchemas(ctx)
	require.NoError(t, err)
	_, err = reg.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, next.lists)

	require.NoError(t, reg.Invalidate(ctx, "laptops"))

	_, err = reg.GetSchema(ctx, "laptops")
	require.NoError(t, err)
	_, err = reg.ListSchemas(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, next.gets)
	assert.Equal(t, 2, next.lists)
}

func TestCachedRegistry_CacheFailureFallsThrough(t *testing.T) {
	next := newCounting(t)
	reg := NewCachedRegistry(next, failingCache{}, time.Minute, discardLogger())

	s, err := reg.GetSchema(context.Background(), "laptops")

	require.NoError(t, err)
	assert.Equal(t, "cat-laptops", s.ID)
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	now = now.Add(2 * time.Second)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
