package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "checkout:lock:"

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was re-taken by another checkout is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ErrNotHeld is returned by a release whose lock had already expired.
var ErrNotHeld = errors.New("lock no longer held")

// RedisLocker implements Locker with SET NX PX and a token-checked release.
type RedisLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLocker creates a locker whose leases expire after ttl. The ttl must
// outlast the slowest checkout, compensation included.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: client, ttl: ttl}
}

func lockKey(username string) string {
	return keyPrefix + username
}

// Acquire takes the lock for username or returns ErrLocked.
func (l *RedisLocker) Acquire(ctx context.Context, username string) (ReleaseFunc, error) {
	key := lockKey(username)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire checkout lock for %s: %w", username, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	return func(ctx context.Context) error {
		n, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("release checkout lock for %s: %w", username, err)
		}
		if n == 0 {
			return ErrNotHeld
		}
		return nil
	}, nil
}
