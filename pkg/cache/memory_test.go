package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type latest struct {
	Label string  `json:"label"`
	Conf  float64 `json:"conf"`
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(size int) (*MemoryCache, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCache(size)
	c.now = clk.now
	return c, clk
}

func TestMemoryCacheStoresStructsAndStrings(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(0)

	require.NoError(t, c.Set(ctx, Key("latest", "s1"), latest{"STABLE", 0.9}, time.Minute))
	require.NoError(t, c.Set(ctx, "raw", "plain text", 0))

	var got latest
	require.NoError(t, c.Get(ctx, "latest:s1", &got))
	assert.Equal(t, latest{"STABLE", 0.9}, got)

	var s string
	require.NoError(t, c.Get(ctx, "raw", &s))
	assert.Equal(t, "plain text", s)

	assert.ErrorIs(t, c.Get(ctx, "latest:s2", &got), ErrCacheMiss)
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(0)

	require.NoError(t, c.Set(ctx, "short", "v", time.Second))
	require.NoError(t, c.Set(ctx, "forever", "v", 0))
	clk.advance(2 * time.Second)

	var s string
	assert.ErrorIs(t, c.Get(ctx, "short", &s), ErrCacheMiss)
	ok, err := c.Exists(ctx, "short")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.Exists(ctx, "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryCacheEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(2)

	require.NoError(t, c.Set(ctx, "a", "1", 0))
	require.NoError(t, c.Set(ctx, "b", "2", 0))
	var s string
	require.NoError(t, c.Get(ctx, "a", &s))
	require.NoError(t, c.Set(ctx, "c", "3", 0))

	assert.Equal(t, 2, c.Len())
	assert.ErrorIs(t, c.Get(ctx, "b", &s), ErrCacheMiss)
	require.NoError(t, c.Get(ctx, "a", &s))
	assert.Equal(t, "1", s)
}

func TestMemoryCacheIncrement(t *testing.T) {
	ctx := context.Background()
	c, clk := newTestCache(0)

	for i := int64(1); i <= 3; i++ {
		n, err := c.Increment(ctx, Key("published", "s1"))
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	var n int64
	require.NoError(t, c.Get(ctx, "published:s1", &n))
	assert.Equal(t, int64(3), n)

	require.NoError(t, c.Set(ctx, "word", "abc", 0))
	_, err := c.Increment(ctx, "word")
	assert.Error(t, err)

	require.NoError(t, c.Set(ctx, "ttl", "7", time.Second))
	n, err = c.Increment(ctx, "ttl")
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	clk.advance(2 * time.Second)
	n, err = c.Increment(ctx, "ttl")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "an expired counter restarts")
}

func TestGetManyAndPatternDelete(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(0)

	require.NoError(t, c.Set(ctx, "latest:s1", latest{"ANOMALY", 0.95}, 0))
	require.NoError(t, c.Set(ctx, "latest:s2", latest{"STABLE", 0.9}, 0))
	require.NoError(t, c.Set(ctx, "latest:bad", "not json", 0))
	_, err := c.Increment(ctx, "published:s1")
	require.NoError(t, err)

	typed, err := GetMany[latest](ctx, c, "latest:s1", "latest:s2", "latest:s3", "latest:bad")
	require.NoError(t, err)
	assert.Len(t, typed, 2)
	assert.Equal(t, "ANOMALY", typed["latest:s1"].Label)

	empty, err := GetMany[latest](ctx, c)
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, c.DeleteByPattern(ctx, Under("latest")))
	ok, err := c.Exists(ctx, "latest:s1", "latest:s2")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = c.Exists(ctx, "published:s1")
	require.NoError(t, err)
	assert.True(t, ok)
}
