package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotConfigured is returned when the locker has no Redis client.
var ErrNotConfigured = errors.New("lock: redis client not configured")

const defaultTTL = 30 * time.Second

// releaseScript deletes the key only while it still holds our token, so a lock
// that expired and was taken by someone else is left alone.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`

// ErrHeld is returned by TryLock when another holder owns the key.
var ErrHeld = errors.New("lock: held by another owner")

// Locker provides a Redis-backed mutual exclusion lock. Checkout uses it to
// keep two captures of the same remote order from reaching the gateway at once.
type Locker struct {
	R      *redis.Client
	Prefix string
}

// TryLock makes one attempt to take the lock for key and runs fn while holding
// it. A busy lock returns ErrHeld immediately. The lock is released when fn
// returns, and expires after ttl if the process dies first.
func (l Locker) TryLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	key = l.Prefix + key
	token := uuid.NewString()

	ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer l.release(context.WithoutCancel(ctx), key, token)
	return fn(ctx)
}

func (l Locker) release(ctx context.Context, key, token string) {
	if err := l.R.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
