// internal/zookeeper/lock.go
package zookeeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-zookeeper/zk"
)

const (
	DefaultLockRoot = "/distributed_locks" // 所有分布式锁的根节点
	seqLen          = 10                   // 顺序节点后缀长度
)

var (
	ErrLockBusy     = errors.New("lock is held by another session")
	ErrLockNodeLost = errors.New("lock node disappeared before acquisition")
)

// Session 是锁用到的 *zk.Conn 方法子集。
type Session interface {
	Exists(path string) (bool, *zk.Stat, error)
	ExistsW(path string) (bool, *zk.Stat, <-chan zk.Event, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	CreateProtectedEphemeralSequential(path string, data []byte, acl []zk.ACL) (string, error)
	Children(path string) ([]string, *zk.Stat, error)
	Delete(path string, version int32) error
}

// DistributedLock 定义了一个分布式锁对象，基于临时顺序节点实现公平排队。
type DistributedLock struct {
	conn     Session
	path     string // 锁的路径，例如 /distributed_locks/warehouse-1-item-2
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建锁实例，并确保锁路径存在。
func NewDistributedLock(conn Session, root, resourceID string) (*DistributedLock, error) {
	if root == "" {
		root = DefaultLockRoot
	}
	lockPath := root + "/" + resourceID
	for _, p := range []string{root, lockPath} {
		if err := ensurePath(conn, p); err != nil {
			return nil, err
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// 生产环境中根节点通常由初始化脚本创建
func ensurePath(conn Session, path string) error {
	exists, _, err := conn.Exists(path)
	if err != nil {
		return fmt.Errorf("failed to check lock path %s: %w", path, err)
	}
	if exists {
		return nil
	}
	if _, err := conn.Create(path, []byte(""), 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("failed to create lock path %s: %w", path, err)
	}
	return nil
}

// Lock 获取锁。blocking 为 false 时不排队，拿不到立即返回 ErrLockBusy；
// 否则一直等到前序节点删除、wait 到期或 ctx 结束。
// ttl > 0 时作为租期：创建超过 ttl 的前序节点视为持有者已失联，直接删除。
func (l *DistributedLock) Lock(ctx context.Context, wait, ttl time.Duration, blocking bool) (string, error) {
	// 1. 在锁路径下创建一个临时顺序节点
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return "", fmt.Errorf("failed to create sequential node: %w", err)
	}
	l.lockNode = nodePath

	var deadline <-chan time.Time
	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		// 2. 获取锁路径下的所有子节点，按序号排序
		children, _, err := l.conn.Children(l.path)
		if err != nil {
			l.abandon()
			return "", fmt.Errorf("failed to get children nodes: %w", err)
		}
		sortBySequence(children)

		// 3. 判断自己是否是最小的节点
		myNodeName := strings.TrimPrefix(l.lockNode, l.path+"/")
		found := false
		prev := ""
		for i, child := range children {
			if child == myNodeName {
				found = true
				if i > 0 {
					prev = children[i-1]
				}
				break
			}
		}
		if !found {
			// 会话过期或节点被当作过期租约删除
			l.abandon()
			return "", fmt.Errorf("%w: %s", ErrLockNodeLost, nodePath)
		}
		if prev == "" {
			return l.lockNode, nil
		}
		if !blocking {
			l.abandon()
			return "", ErrLockBusy
		}

		// 4. 不是最小节点，监听前一个节点
		prevPath := l.path + "/" + prev
		exists, stat, eventChan, err := l.conn.ExistsW(prevPath)
		if err != nil {
			l.abandon()
			return "", fmt.Errorf("failed to watch previous node: %w", err)
		}
		if !exists {
			continue
		}

		var leaseTimer *time.Timer
		var leaseEnd <-chan time.Time
		if ttl > 0 && stat != nil {
			age := time.Since(time.UnixMilli(stat.Ctime))
			if age >= ttl {
				if err := DeleteNode(l.conn, prevPath); err != nil {
					l.abandon()
					return "", err
				}
				continue
			}
			leaseTimer = time.NewTimer(ttl - age)
			leaseEnd = leaseTimer.C
		}

		err = nil
		select {
		case <-eventChan:
		case <-leaseEnd:
		case <-deadline:
			err = fmt.Errorf("timeout waiting for lock %s after %s", l.path, wait)
		case <-ctx.Done():
			err = ctx.Err()
		}
		if leaseTimer != nil {
			leaseTimer.Stop()
		}
		if err != nil {
			l.abandon()
			return "", err
		}
	}
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	if err := DeleteNode(l.conn, l.lockNode); err != nil {
		return err
	}
	l.lockNode = ""
	return nil
}

// DeleteNode 删除锁节点，节点已不存在视为成功。
func DeleteNode(conn Session, node string) error {
	if err := conn.Delete(node, -1); err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("failed to delete lock node: %w", err)
	}
	return nil
}

func (l *DistributedLock) abandon() {
	_ = DeleteNode(l.conn, l.lockNode)
	l.lockNode = ""
}

// protected 节点带有随机前缀，只能按序号后缀排序。
func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool {
		return sequence(children[i]) < sequence(children[j])
	})
}

func sequence(node string) string {
	if len(node) < seqLen {
		return node
	}
	return node[len(node)-seqLen:]
}
