package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisCache(rdb), mr
}

func TestRedisCache_RoundTripAndExpiry(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()
	key := InsightsKey("s1")
	assert.Equal(t, "session:s1:insights", key)

	var got map[string]any
	hit, err := c.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, c.SetJSON(ctx, key, map[string]any{"summary": "engaged"}, 10*time.Second))
	hit, err = c.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "engaged", got["summary"])

	mr.FastForward(11 * time.Second)
	hit, err = c.GetJSON(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestRedisCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set("k", "{not json"))

	var got map[string]any
	hit, err := c.GetJSON(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.False(t, mr.Exists("k"))
}

func TestRedisCache_Del(t *testing.T) {
	c, mr := newCache(t)
	require.NoError(t, mr.Set("a", "1"))
	require.NoError(t, c.Del(context.Background(), "a"))
	require.NoError(t, c.Del(context.Background()))
	assert.False(t, mr.Exists("a"))
}
