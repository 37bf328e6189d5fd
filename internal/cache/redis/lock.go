package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

var _ domain.LockManager = (*LockManager)(nil)

// unlockScript deletes the key only if it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// LockManager implements domain.LockManager with SET NX PX.
type LockManager struct {
	rdb    *redis.Client
	prefix string
}

// NewLockManager creates a LockManager. Keys are stored as "lock:<key>".
func NewLockManager(c *Client) *LockManager {
	return &LockManager{rdb: c.Underlying(), prefix: "lock:"}
}

// Acquire takes the named lock for ttl and returns its release function.
// It fails with domain.ErrLockHeld when another holder owns the lock.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	fullKey := lm.prefix + key
	token := uuid.NewString()

	ok, err := lm.rdb.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, domain.ErrLockHeld)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_ = unlockScript.Run(ctx, lm.rdb, []string{fullKey}, token).Err()
		})
	}
	return release, nil
}
