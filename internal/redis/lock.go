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
	// ErrLockBusy means another operation currently holds the slot lock.
	// It is surfaced to callers as-is and never retried here; retry policy
	// belongs to the client so that retry storms do not pile onto a hot slot.
	ErrLockBusy = errors.New("slot lock held by another operation")

	// ErrLockUnavailable means the lock backend itself failed. Distinct
	// from ErrLockBusy, which is ordinary contention.
	ErrLockUnavailable = errors.New("lock backend unavailable")
)

// Locker serializes mutations of a single slot's state across any number
// of request-handling processes. WithSlotLock runs fn while holding the
// per-slot lock and always releases it afterwards; when another holder is
// active it fails fast with ErrLockBusy instead of queueing.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

// Lock is a handle on an acquired slot lock. Release is idempotent: once
// the token no longer matches (expired or already released) it is a no-op.
type Lock struct {
	key     string
	token   string
	release func(ctx context.Context, key, token string) error
}

func (l *Lock) Release(ctx context.Context) error {
	if l.release == nil {
		return nil
	}
	return l.release(ctx, l.key, l.token)
}

// RedisSlotLocker implements Locker on a per-slot Redis key. Acquire and
// Lock.Release are exposed for callers that need the raw lease; the lock
// auto-expires after ttl even if the holder crashes before releasing it.
type RedisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSlotLocker creates a locker backed by a per-slot Redis key.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration) *RedisSlotLocker {
	return &RedisSlotLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *RedisSlotLocker) Acquire(ctx context.Context, slotID uuid.UUID) (*Lock, error) {
	key := fmt.Sprintf("lock:slot:%s", slotID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: acquire slot lock: %w", ErrLockUnavailable, err)
	}
	if !ok {
		return nil, ErrLockBusy
	}

	return &Lock{key: key, token: token, release: l.releaseToken}, nil
}

func (l *RedisSlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	lock, err := l.Acquire(ctx, slotID)
	if err != nil {
		return err
	}

	defer func() {
		_ = lock.Release(ctx)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

// Deleting only when the token matches keeps release safe after expiry:
// a lock that timed out and was re-acquired by someone else is left alone.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *RedisSlotLocker) releaseToken(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: release slot lock: %w", ErrLockUnavailable, err)
	}
	return nil
}
