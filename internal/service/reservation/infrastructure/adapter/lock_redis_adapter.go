package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"allocator/internal/pkg/redis"
	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/domain/port"
)

const (
	releaseLockScriptName = "release_lock"
	redisLockPrefix       = "lock:"
	redisLockRetry        = 20 * time.Millisecond
)

var ErrLockNotHeld = errors.New("lock not held by this token")

// RedisLockService 是 port.LockService 的 Redis 实现：SET NX PX 加锁，Lua 比较 token 后删除。
type RedisLockService struct {
	redisClient *redis.Client
	wait        time.Duration
}

// NewRedisLockService 创建锁服务并加载释放脚本。wait 是阻塞获取的最长等待时间。
func NewRedisLockService(redisClient *redis.Client, wait time.Duration) (*RedisLockService, error) {
	if err := redisClient.LoadScriptFromContent(releaseLockScriptName, releaseLockScript); err != nil {
		return nil, fmt.Errorf("failed to load release lock script: %w", err)
	}
	return &RedisLockService{redisClient: redisClient, wait: wait}, nil
}

var _ port.LockService = (*RedisLockService)(nil)

func (s *RedisLockService) Acquire(ctx context.Context, key string, ttl time.Duration, blocking bool) (port.LockHandle, error) {
	token := uuid.NewString()

	var deadline <-chan time.Time
	if blocking && s.wait > 0 {
		timer := time.NewTimer(s.wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		ok, err := s.redisClient.GetClient().SetNX(ctx, redisLockPrefix+key, token, ttl).Result()
		if err != nil {
			return port.LockHandle{}, &domain.LockAcquisitionError{Key: key, Err: err}
		}
		if ok {
			return port.LockHandle{Key: key, Token: token, ExpiresAt: time.Now().Add(ttl)}, nil
		}
		if !blocking {
			return port.LockHandle{}, &domain.LockAcquisitionError{Key: key}
		}

		select {
		case <-time.After(redisLockRetry):
		case <-deadline:
			return port.LockHandle{}, &domain.LockAcquisitionError{Key: key, Err: fmt.Errorf("not acquired within %s", s.wait)}
		case <-ctx.Done():
			return port.LockHandle{}, &domain.LockAcquisitionError{Key: key, Err: ctx.Err()}
		}
	}
}

// Release 只删除自己持有的锁，锁已过期或被他人持有时返回 ErrLockNotHeld。
func (s *RedisLockService) Release(ctx context.Context, handle port.LockHandle) error {
	result, err := s.redisClient.RunScript(ctx, releaseLockScriptName, []string{redisLockPrefix + handle.Key}, handle.Token)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", handle.Key, err)
	}
	if n, ok := result.(int64); !ok || n == 0 {
		return ErrLockNotHeld
	}
	return nil
}

var releaseLockScript = `
-- KEYS[1]: 锁的 key, 例如: lock:warehouse-1-item-2
-- ARGV[1]: 加锁时写入的 token
if redis.call('get', KEYS[1]) == ARGV[1] then
    return redis.call('del', KEYS[1])
end
return 0
`
