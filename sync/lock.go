// ABOUTME: Per-user sync leases
// ABOUTME: Redis SET NX leases for multi-process deployments and an in-process fallback
package sync

import (
	"context"
	"errors"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrLockNotAcquired is returned when another holder owns the lease
	ErrLockNotAcquired = errors.New("lock not acquired")
	// ErrLockNotHeld is returned when releasing a lease that expired or moved
	ErrLockNotHeld = errors.New("lock not held")
)

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring leases by key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// RedisLocker implements Locker with SET NX PX and an owner-checked release.
type RedisLocker struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

func NewRedisLocker(rdb redis.UniversalClient, keyPrefix string) *RedisLocker {
	if keyPrefix == "" {
		keyPrefix = "vesta:lock:"
	}
	return &RedisLocker{rdb: rdb, keyPrefix: keyPrefix}
}

// NewRedisLockerFromURL parses a redis:// URL and verifies connectivity.
func NewRedisLockerFromURL(ctx context.Context, url string) (*RedisLocker, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return NewRedisLocker(client, ""), client.Close, nil
}

type redisLease struct {
	rdb   redis.UniversalClient
	key   string
	value string
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	lockKey := l.keyPrefix + key
	lockValue := uuid.New().String()

	ok, err := l.rdb.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &redisLease{rdb: l.rdb, key: lockKey, value: lockValue}, nil
}

func (l *redisLease) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.value).Int64()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// LocalLocker implements Locker inside one process. Leases expire after ttl
// so a stuck holder cannot block a user forever.
type LocalLocker struct {
	mu   gosync.Mutex
	held map[string]localHold
}

type localHold struct {
	owner   string
	expires time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]localHold)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if hold, ok := l.held[key]; ok && now.Before(hold.expires) {
		return nil, ErrLockNotAcquired
	}

	owner := uuid.New().String()
	l.held[key] = localHold{owner: owner, expires: now.Add(ttl)}
	return &localLease{locker: l, key: key, owner: owner}, nil
}

type localLease struct {
	locker *LocalLocker
	key    string
	owner  string
}

func (l *localLease) Release(_ context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	hold, ok := l.locker.held[l.key]
	if !ok || hold.owner != l.owner {
		return ErrLockNotHeld
	}
	delete(l.locker.held, l.key)
	return nil
}
