package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradeloop/internal/domain"
)

// Both scripts only touch the key while it still carries the caller's token.
var (
	unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
)

// LockManager implements domain.LockManager with SET NX and token-checked
// release.
type LockManager struct {
	rdb *redis.Client
}

// NewLockManager creates a LockManager.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.Underlying()}
}

func lockKey(key string) string {
	return keyPrefix + "lock:" + key
}

// Acquire takes the lock for ttl. It returns domain.ErrLockHeld when another
// holder owns it. The returned unlock is idempotent.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() { once.Do(func() { lm.release(key, token) }) }, nil
}

// Hold acquires the lock and keeps extending it every ttl/3 until the
// returned release is called or ctx ends. The lost channel is closed if an
// extension finds the lock taken over or expired.
func (lm *LockManager) Hold(ctx context.Context, key string, ttl time.Duration) (lost <-chan struct{}, release func(), err error) {
	token, err := lm.acquire(ctx, key, ttl)
	if err != nil {
		return nil, nil, err
	}

	lostCh := make(chan struct{})
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				n, err := refreshScript.Run(ctx, lm.rdb, []string{lockKey(key)}, token, ttl.Milliseconds()).Int64()
				if err == nil && n == 0 {
					close(lostCh)
					return
				}
			}
		}
	}()

	var once sync.Once
	release = func() {
		once.Do(func() {
			close(done)
			wg.Wait()
			lm.release(key, token)
		})
	}
	return lostCh, release, nil
}

func (lm *LockManager) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := lm.rdb.SetNX(ctx, lockKey(key), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", domain.ErrLockHeld
	}
	return token, nil
}

// release runs on a fresh context so it succeeds after the caller's is done.
func (lm *LockManager) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = unlockScript.Run(ctx, lm.rdb, []string{lockKey(key)}, token).Err()
}

var _ domain.LockManager = (*LockManager)(nil)
