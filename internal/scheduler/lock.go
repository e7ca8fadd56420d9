package scheduler

import (
	"context"
	"sync"
	"time"

	"smarttv-backend/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultLockKey = "callsync:reconcile:lock"

// RedisLock is a Locker backed by a single Redis key with a TTL.
// Each acquisition uses a fresh owner token so a late release never frees
// a lock another replica has since taken. While held, the TTL is renewed every
// third of the TTL, so a pass longer than the TTL keeps the lock. A crashed
// holder frees it after one TTL.
type RedisLock struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

func NewRedisLock(rdb *redis.Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultLockKey
	}
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

func (l *RedisLock) Acquire(ctx context.Context) (func(), bool, error) {
	owner := uuid.NewString()
	ok, err := utils.AcquireLock(ctx, l.rdb, l.key, owner, l.ttl)
	if err != nil || !ok {
		return func() {}, ok, err
	}

	stop := make(chan struct{})
	renewed := make(chan struct{})
	go l.renew(context.WithoutCancel(ctx), owner, stop, renewed)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-renewed
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_, _ = utils.ReleaseLock(rctx, l.rdb, l.key, owner)
		})
	}
	return release, true, nil
}

// renew extends the lock until stop closes or ownership is lost.
func (l *RedisLock) renew(ctx context.Context, owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	every := l.ttl / 3
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			rctx, cancel := context.WithTimeout(ctx, every)
			ok, err := utils.ExtendLock(rctx, l.rdb, l.key, owner, l.ttl)
			cancel()
			if err == nil && !ok {
				return
			}
		}
	}
}
