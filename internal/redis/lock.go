package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("room lock not acquired")
)

// Locker guards the critical section that checks for and creates a video-call
// room, so concurrent create requests for the same appointment cannot both
// race past the existence check.
type Locker interface {
	WithRoomLock(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisRoomLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRoomLocker creates a locker that uses a per appointment Redis key
func NewRedisRoomLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisRoomLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisRoomLocker) WithRoomLock(ctx context.Context, appointmentID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:room:%s", appointmentID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire room lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisRoomLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release room lock: %w", err)
	}
	return nil
}
