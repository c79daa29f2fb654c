package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"serotonyl.ru/dating-core/internal/config"
)

func TestMemoryCacheTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, c.Set(ctx, "forever", "v", 0))

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	now = now.Add(time.Minute)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	_, err = c.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestMemoryCacheSweepsExpiredOnSet(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryCache()
	c.now = func() time.Time { return now }

	for _, k := range []string{"unlock:1:2", "unlock:1:3", "unlock:1:4"} {
		require.NoError(t, c.Set(ctx, k, "1", time.Minute))
	}
	require.NoError(t, c.Set(ctx, "forever", "1", 0))
	assert.Equal(t, 4, len(c.items))

	// Истёкшие ключи никто не читает, но следующая запись их вычищает
	now = now.Add(2 * time.Minute)
	require.NoError(t, c.Set(ctx, "unlock:1:5", "1", time.Hour))
	assert.Equal(t, 2, len(c.items))

	// Чаще раза в sweepEvery чистка не запускается
	require.NoError(t, c.Set(ctx, "unlock:1:6", "1", time.Second))
	now = now.Add(2 * time.Second)
	require.NoError(t, c.Set(ctx, "unlock:1:7", "1", time.Hour))
	assert.Equal(t, 4, len(c.items))

	now = now.Add(sweepEvery)
	require.NoError(t, c.Set(ctx, "unlock:1:8", "1", time.Hour))
	assert.Equal(t, 4, len(c.items))
	_, err := c.Get(ctx, "unlock:1:6")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	c := NewRedisCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer c.Close()

	_, err := c.Get(ctx, "unlock:1:2")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, c.Set(ctx, "unlock:1:2", "1", time.Hour))
	got, err := c.Get(ctx, "unlock:1:2")
	require.NoError(t, err)
	assert.Equal(t, "1", got)

	mr.FastForward(time.Hour)
	_, err = c.Get(ctx, "unlock:1:2")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestNewPicksBackend(t *testing.T) {
	ctx := context.Background()

	c, err := New(ctx, &config.Config{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	mr := miniredis.RunT(t)
	c, err = New(ctx, &config.Config{RedisAddr: mr.Addr()})
	require.NoError(t, err)
	assert.IsType(t, &RedisCache{}, c)
	require.NoError(t, c.(*RedisCache).Close())

	mr.Close()
	_, err = New(ctx, &config.Config{RedisAddr: mr.Addr()})
	assert.Error(t, err)
}
