package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Miraines/MoonyAndStarry/users-service/internal/domain/auth/model"
)

const (
	userKeyPrefix = "user:"
	staleSuffix   = ":stale"

	// tombstoneTTL covers a read that loaded the row before an invalidation
	// and writes it back afterwards.
	tombstoneTTL = 10 * time.Second
)

// setUnlessStale writes the profile only while no tombstone is present.
var setUnlessStale = redis.NewScript(`
if redis.call("EXISTS", KEYS[2]) == 1 then
	return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

type RedisUserCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisUserCache(client *redis.Client, ttl time.Duration) *RedisUserCache {
	return &RedisUserCache{
		client: client,
		ttl:    safeTTL(ttl),
	}
}

func (r *RedisUserCache) Get(ctx context.Context, id int64) (model.PublicUser, bool, error) {
	raw, err := r.client.Get(ctx, key(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return model.PublicUser{}, false, nil
	case err != nil:
		return model.PublicUser{}, false, err
	}

	var u model.PublicUser
	if err := json.Unmarshal(raw, &u); err != nil {
		// unreadable entry, drop it and go to the database
		_ = r.client.Del(ctx, key(id)).Err()
		return model.PublicUser{}, false, nil
	}
	return u, true, nil
}

func (r *RedisUserCache) Set(ctx context.Context, u model.PublicUser) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return setUnlessStale.Run(ctx, r.client,
		[]string{key(u.ID), staleKey(u.ID)},
		raw, r.ttl.Milliseconds(),
	).Err()
}

// Delete drops the profile and blocks re-population for tombstoneTTL.
func (r *RedisUserCache) Delete(ctx context.Context, id int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key(id))
		pipe.Set(ctx, staleKey(id), 1, tombstoneTTL)
		return nil
	})
	return err
}

func (r *RedisUserCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func key(id int64) string {
	return userKeyPrefix + strconv.FormatInt(id, 10)
}

func staleKey(id int64) string {
	return key(id) + staleSuffix
}

func safeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 5 * time.Minute
	}
	return ttl
}

// NoopUserCache is used when REDIS_ADDRESS is not configured.
type NoopUserCache struct{}

func (NoopUserCache) Get(context.Context, int64) (model.PublicUser, bool, error) {
	return model.PublicUser{}, false, nil
}

func (NoopUserCache) Set(context.Context, model.PublicUser) error { return nil }

func (NoopUserCache) Delete(context.Context, int64) error { return nil }
