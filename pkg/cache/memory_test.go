package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{MaxItems: 10, TTL: time.Minute}, t.Name())
	defer c.Stop()

	ctx := context.Background()

	_, ok := c.Fetch(ctx, "missing")
	require.False(t, ok)

	c.Store(ctx, "key", []byte("value"))
	got, ok := c.Fetch(ctx, "key")
	require.True(t, ok)
	require.Equal(t, []byte("value"), got)
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{MaxItems: 3, TTL: time.Minute}, t.Name())
	defer c.Stop()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.Store(ctx, strconv.Itoa(i), []byte{byte(i)})
	}

	_, ok := c.Fetch(ctx, "0")
	require.False(t, ok, "oldest entry should have been evicted")
	_, ok = c.Fetch(ctx, "4")
	require.True(t, ok)
}

func TestMemoryCacheTTL(t *testing.T) {
	c := NewMemoryCache(MemoryConfig{MaxItems: 10, TTL: 10 * time.Millisecond}, t.Name())
	defer c.Stop()

	ctx := context.Background()
	c.Store(ctx, "key", []byte("value"))

	require.Eventually(t, func() bool {
		_, ok := c.Fetch(ctx, "key")
		return !ok
	}, time.Second, 5*time.Millisecond)
}
