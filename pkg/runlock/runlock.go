package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("runlock",
	fx.Provide(
		fx.Annotate(NewRedisLocker, fx.As(new(Locker))),
	),
)

var ErrNotAcquired = errors.New("runlock: lock is held by another owner")

// ReleaseFunc gives the lock back. It is a no-op once the TTL has expired and
// another owner holds the key.
type ReleaseFunc func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error)
}

// Deletes the key only when it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ReleaseFunc, error) {
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrNotAcquired
	}

	zap.L().Debug("[RunLock] acquired", zap.String("key", key), zap.Duration("ttl", ttl))

	return func(ctx context.Context) error {
		deleted, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if deleted == 0 {
			zap.L().Warn("[RunLock] lock expired before release", zap.String("key", key))
		}
		return nil
	}, nil
}
