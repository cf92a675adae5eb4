package connector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"trunk-connector/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	globalLockKey   = "global"
	accountLockPfx  = "account:"
	redisLockPrefix = "trunk-connector:lock:"
)

// Locker grants exclusive, context-bounded access to a key.
type Locker interface {
	// Lock blocks until the key is held or ctx ends. unlock is safe to call more than once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// LocalLocker is a keyed mutex for single-replica deployments.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: map[string]*keyLock{}}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	k, ok := l.locks[key]
	if !ok {
		k = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = k
	}
	k.refs++
	l.mu.Unlock()

	select {
	case k.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-k.ch
				l.release(key, k)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, k)
		return nil, ctx.Err()
	}
}

func (l *LocalLocker) release(key string, k *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k.refs--
	if k.refs == 0 {
		delete(l.locks, key)
	}
}

// RedisLocker coordinates replicas through SET NX PX locks with token-checked release.
type RedisLocker struct {
	rdb  redis.Cmdable
	ttl  time.Duration
	poll time.Duration
	log  *slog.Logger
}

func NewRedisLocker(rdb redis.Cmdable, ttl time.Duration, log *slog.Logger) (*RedisLocker, error) {
	if rdb == nil {
		return nil, errors.New("connector: redis client required")
	}
	if ttl <= 0 {
		return nil, errors.New("connector: lock ttl must be > 0")
	}
	if log == nil {
		log = slog.Default()
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, poll: 100 * time.Millisecond, log: log}, nil
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := redisLockPrefix + key
	token := uuid.NewString()

	t := time.NewTicker(l.poll)
	defer t.Stop()
	for {
		ok, err := utils.TryAcquireLock(ctx, l.rdb, redisKey, token, l.ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's ctx may already be done; release on a fresh one.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := utils.ReleaseLock(rctx, l.rdb, redisKey, token); err != nil {
				l.log.Warn("lock release failed", "key", key, "err", err)
			}
		})
	}, nil
}
