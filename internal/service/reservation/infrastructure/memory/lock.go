// internal/service/reservation/infrastructure/memory/lock.go
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/domain/port"
)

var ErrLockNotHeld = errors.New("lock not held by this token")

type lockEntry struct {
	token     string
	expiresAt time.Time
}

// LockService 是单进程内的 port.LockService 实现，过期的锁视为已释放。
type LockService struct {
	mu      sync.Mutex
	held    map[string]lockEntry
	changed chan struct{}
	wait    time.Duration
	now     func() time.Time
}

// NewLockService 创建内存锁。wait 是阻塞获取的最长等待时间，0 表示只受 ctx 约束。
func NewLockService(wait time.Duration) *LockService {
	return &LockService{
		held:    make(map[string]lockEntry),
		changed: make(chan struct{}),
		wait:    wait,
		now:     time.Now,
	}
}

var _ port.LockService = (*LockService)(nil)

func (s *LockService) Acquire(ctx context.Context, key string, ttl time.Duration, blocking bool) (port.LockHandle, error) {
	var deadline <-chan time.Time
	if blocking && s.wait > 0 {
		timer := time.NewTimer(s.wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		s.mu.Lock()
		now := s.now()
		entry, ok := s.held[key]
		if !ok || !now.Before(entry.expiresAt) {
			handle := port.LockHandle{Key: key, Token: uuid.NewString(), ExpiresAt: now.Add(ttl)}
			s.held[key] = lockEntry{token: handle.Token, expiresAt: handle.ExpiresAt}
			s.mu.Unlock()
			return handle, nil
		}
		changed := s.changed
		expiresIn := entry.expiresAt.Sub(now)
		s.mu.Unlock()

		if !blocking {
			return port.LockHandle{}, &domain.LockAcquisitionError{Key: key}
		}

		expiry := time.NewTimer(expiresIn)
		select {
		case <-changed:
		case <-expiry.C:
		case <-deadline:
			expiry.Stop()
			return port.LockHandle{}, &domain.LockAcquisitionError{Key: key, Err: errors.New("wait timeout")}
		case <-ctx.Done():
			expiry.Stop()
			return port.LockHandle{}, &domain.LockAcquisitionError{Key: key, Err: ctx.Err()}
		}
		expiry.Stop()
	}
}

func (s *LockService) Release(_ context.Context, handle port.LockHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.held[handle.Key]
	if !ok || entry.token != handle.Token {
		return ErrLockNotHeld
	}
	delete(s.held, handle.Key)
	close(s.changed)
	s.changed = make(chan struct{})
	return nil
}

// Held 返回当前未过期的锁 key 数量。
func (s *LockService) Held() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, entry := range s.held {
		if now.Before(entry.expiresAt) {
			n++
		}
	}
	return n
}
