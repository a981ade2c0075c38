package cache

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sundayezeilo/shortlink/internal/shortener"
)

func testEntry() shortener.CacheEntry {
	return shortener.CacheEntry{
		LinkID: uuid.Must(uuid.NewV7()),
		URL:    "https://example.com/a/b",
	}
}

// runContract checks the behaviour every backend shares.
func runContract(t *testing.T, c shortener.Cache) {
	t.Helper()
	ctx := context.Background()

	t.Run("miss on absent slug", func(t *testing.T) {
		_, ok, err := c.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("put then get", func(t *testing.T) {
		entry := testEntry()
		require.NoError(t, c.Put(ctx, "abc123", entry, time.Minute))

		got, ok, err := c.Get(ctx, "abc123")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, entry, got)
	})

	t.Run("put overwrites", func(t *testing.T) {
		first, second := testEntry(), testEntry()
		require.NoError(t, c.Put(ctx, "over01", first, time.Minute))
		require.NoError(t, c.Put(ctx, "over01", second, time.Minute))

		got, ok, err := c.Get(ctx, "over01")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, second, got)
	})

	t.Run("non-positive ttl stores nothing", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, "zero01", testEntry(), 0))
		require.NoError(t, c.Put(ctx, "neg001", testEntry(), -time.Second))

		_, ok, err := c.Get(ctx, "zero01")
		require.NoError(t, err)
		assert.False(t, ok)
		_, ok, err = c.Get(ctx, "neg001")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("invalidate removes and tolerates absent", func(t *testing.T) {
		require.NoError(t, c.Put(ctx, "drop01", testEntry(), time.Minute))
		require.NoError(t, c.Invalidate(ctx, "drop01"))

		_, ok, err := c.Get(ctx, "drop01")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.NoError(t, c.Invalidate(ctx, "never-stored"))
	})
}

func TestMemory(t *testing.T) {
	runContract(t, NewMemory(time.Minute))
}

func TestMemory_Expires(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Minute)

	require.NoError(t, c.Put(ctx, "short1", testEntry(), 20*time.Millisecond))
	_, ok, _ := c.Get(ctx, "short1")
	require.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok, err := c.Get(ctx, "short1")
	require.NoError(t, err)
	assert.False(t, ok, "entry must not outlive its ttl")
}

func TestLRU(t *testing.T) {
	c, err := NewLRU(64)
	require.NoError(t, err)
	runContract(t, c)
}

func TestLRU_Expires(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(8)
	require.NoError(t, err)

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Put(ctx, "short1", testEntry(), time.Minute))

	now = now.Add(59 * time.Second)
	_, ok, _ := c.Get(ctx, "short1")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = c.Get(ctx, "short1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entries are dropped on read")
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c, err := NewLRU(2)
	require.NoError(t, err)

	require.NoError(t, c.Put(ctx, "first1", testEntry(), time.Minute))
	require.NoError(t, c.Put(ctx, "second", testEntry(), time.Minute))

	// Touch first1 so second becomes the eviction candidate.
	_, ok, _ := c.Get(ctx, "first1")
	require.True(t, ok)

	require.NoError(t, c.Put(ctx, "third1", testEntry(), time.Minute))

	_, ok, _ = c.Get(ctx, "second")
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, "first1")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestNewLRU_DefaultCapacity(t *testing.T) {
	c, err := NewLRU(0)
	require.NoError(t, err)
	assert.NotNil(t, c)
}
