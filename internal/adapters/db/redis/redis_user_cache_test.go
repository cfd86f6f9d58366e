package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
)

func newCache(t *testing.T) (*RedisUserCache, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)

	client := redisv9.NewClient(&redisv9.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisUserCache(client, time.Minute), mr
}

func TestRedisUserCache_SetGet(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	email := "a@x.com"
	u := model.PublicUser{ID: 1, Username: "alice", Email: &email, CreatedAt: time.Unix(1_700_000_000, 0).UTC()}
	require.NoError(t, cache.Set(ctx, u))
	require.Equal(t, time.Minute, mr.TTL("user:1"))

	got, ok, err := cache.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, u.CreatedAt.Equal(got.CreatedAt))
	got.CreatedAt = u.CreatedAt
	require.Equal(t, u, got)
}

func TestRedisUserCache_Miss(t *testing.T) {
	cache, _ := newCache(t)

	_, ok, err := cache.Get(context.Background(), 99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisUserCache_Expiry(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, model.PublicUser{ID: 2, Username: "bob"}))
	mr.FastForward(2 * time.Minute)

	_, ok, err := cache.Get(ctx, 2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisUserCache_Delete(t *testing.T) {
	cache, _ := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, model.PublicUser{ID: 3, Username: "carol"}))
	require.NoError(t, cache.Delete(ctx, 3))

	_, ok, err := cache.Get(ctx, 3)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisUserCache_DeleteBlocksStaleRefill(t *testing.T) {
	cache, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, model.PublicUser{ID: 5, Username: "dave"}))
	require.NoError(t, cache.Delete(ctx, 5))
	require.True(t, mr.Exists("user:5:stale"))

	// a reader that loaded the row before the delete writes it back late
	require.NoError(t, cache.Set(ctx, model.PublicUser{ID: 5, Username: "dave"}))
	_, ok, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	require.False(t, ok)

	mr.FastForward(tombstoneTTL + time.Second)
	require.NoError(t, cache.Set(ctx, model.PublicUser{ID: 5, Username: "dave"}))
	got, ok, err := cache.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "dave", got.Username)
}

func TestRedisUserCache_CorruptEntryIsDropped(t *testing.T) {
	cache, mr := newCache(t)
	require.NoError(t, mr.Set("user:4", "{not json"))

	_, ok, err := cache.Get(context.Background(), 4)
	require.NoError(t, err)
	require.False(t, ok)
	require.False(t, mr.Exists("user:4"))
}

func TestRedisUserCache_ServerDown(t *testing.T) {
	cache, mr := newCache(t)
	mr.Close()

	_, _, err := cache.Get(context.Background(), 1)
	require.Error(t, err)
	require.Error(t, cache.Ping(context.Background()))
}

func TestNoopUserCache(t *testing.T) {
	var c NoopUserCache
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, model.PublicUser{ID: 1}))
	_, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Delete(ctx, 1))
}
