// internal/service/reservation/domain/port/lock.go
package port

import (
	"context"
	"time"
)

// LockHandle 是一次成功加锁的凭证，释放时必须原样交回。
type LockHandle struct {
	Key       string
	Token     string
	ExpiresAt time.Time
}

// LockService 提供系统范围内互斥、带超时的命名锁。
// blocking 为 true 时在实现自身的等待上限或 ctx 结束前持续等待。
type LockService interface {
	Acquire(ctx context.Context, key string, ttl time.Duration, blocking bool) (LockHandle, error)
	Release(ctx context.Context, handle LockHandle) error
}
