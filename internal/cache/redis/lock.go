package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/buzzpool/internal/chain"
	"github.com/alanyoungcy/buzzpool/internal/domain"
)

// releaseLua deletes the lock only while it still holds the caller's token.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// LockManager is a SET NX PX lock with token-checked release.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
	}
}

func lockKey(key string) string {
	return "lock:" + key
}

// Acquire takes key for ttl or returns domain.ErrLockHeld. The returned unlock
// may be called more than once.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	lk := lockKey(key)

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done.
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.release.Run(rctx, lm.rdb, []string{lk}, token).Err()
		})
	}, nil
}

// NonceLocker adapts the lock to chain.NonceLocker so that several processes
// signing with one key do not race on nonces. Lock retries every retry until
// the key is free or ctx is done.
func (lm *LockManager) NonceLocker(ttl, retry time.Duration) chain.NonceLocker {
	if retry <= 0 {
		retry = 100 * time.Millisecond
	}
	return &nonceLocker{locks: lm, ttl: ttl, retry: retry}
}

type nonceLocker struct {
	locks domain.LockManager
	ttl   time.Duration
	retry time.Duration
}

func (n *nonceLocker) Lock(ctx context.Context, key string) (func(), error) {
	for {
		unlock, err := n.locks.Acquire(ctx, key, n.ttl)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, err
		}

		t := time.NewTimer(n.retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

var _ domain.LockManager = (*LockManager)(nil)
