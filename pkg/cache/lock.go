package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only if it is still ours.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewLocker(rdb *redis.Client, log *zap.Logger) *Locker {
	return &Locker{rdb: rdb, log: log.With(zap.String("component", "locker"))}
}

// Acquire takes key for at most ttl. ok is false when someone else holds it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), ok bool, err error) {
	k := keyPrefix + "lock:" + key
	token := uuid.NewString()

	ok, err = l.rdb.SetNX(ctx, k, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}

	// A failed release leaves the lock to expire after ttl.
	release = func(ctx context.Context) {
		if err := releaseScript.Run(ctx, l.rdb, []string{k}, token).Err(); err != nil {
			l.log.Warn("Failed to release lock", zap.String("key", key), zap.Error(err))
		}
	}
	return release, true, nil
}
