package adapter

import (
	"context"
	"time"

	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/domain/port"
	"allocator/internal/zookeeper"
)

// ZookeeperLockService 是 port.LockService 的 ZooKeeper 实现。
// 锁节点是临时节点，随会话结束而消失；ttl 作为租期，
// 排队者会删除创建时间超过 ttl 的前序节点，卡住的 saga 最多占用 ttl。
type ZookeeperLockService struct {
	conn zookeeper.Session
	root string
	wait time.Duration
}

func NewZookeeperLockService(conn zookeeper.Session, root string, wait time.Duration) *ZookeeperLockService {
	return &ZookeeperLockService{conn: conn, root: root, wait: wait}
}

var _ port.LockService = (*ZookeeperLockService)(nil)

func (s *ZookeeperLockService) Acquire(ctx context.Context, key string, ttl time.Duration, blocking bool) (port.LockHandle, error) {
	lock, err := zookeeper.NewDistributedLock(s.conn, s.root, key)
	if err != nil {
		return port.LockHandle{}, &domain.LockAcquisitionError{Key: key, Err: err}
	}
	node, err := lock.Lock(ctx, s.wait, ttl, blocking)
	if err != nil {
		return port.LockHandle{}, &domain.LockAcquisitionError{Key: key, Err: err}
	}
	return port.LockHandle{Key: key, Token: node, ExpiresAt: time.Now().Add(ttl)}, nil
}

// Release 删除加锁时创建的顺序节点。
func (s *ZookeeperLockService) Release(_ context.Context, handle port.LockHandle) error {
	return zookeeper.DeleteNode(s.conn, handle.Token)
}
