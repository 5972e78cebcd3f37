package cache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/clock"
	"github.com/NexaDev-26/Nexafya0.1-sub004/internal/infrastructure/cache"
)

func TestMemoryTTL(t *testing.T) {
	clk := clock.NewManaged(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	c := cache.NewMemory(clk)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 10*time.Second))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	clk.Advance(10 * time.Second)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestMemoryZeroTTLIsNotStored(t *testing.T) {
	c := cache.NewMemory(clock.NewManaged(time.Now()))
	require.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
	assert.Zero(t, c.Len())
}

func TestMemoryInvalidate(t *testing.T) {
	c := cache.NewMemory(clock.NewManaged(time.Now()))
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, c.Invalidate(ctx, "k"))
	require.NoError(t, c.Invalidate(ctx, "missing"))
	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

// TestRedisRoundTrip runs against a live server when REDIS_URL is set.
func TestRedisRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	r, err := cache.NewRedis(ctx, url, "test:")
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))
	v, ok, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), v)

	require.NoError(t, r.Invalidate(ctx, "k"))
	_, ok, err = r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
