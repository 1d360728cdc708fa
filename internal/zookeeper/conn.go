// internal/zookeeper/conn.go
package zookeeper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zookeeper/zk"

	"allocator/internal/pkg/logger"
)

// Connect 建立 ZooKeeper 会话并等待会话建立完成。
func Connect(servers []string, sessionTimeout time.Duration) (*zk.Conn, error) {
	conn, events, err := zk.Connect(servers, sessionTimeout, zk.WithLogInfo(false))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to zookeeper %v: %w", servers, err)
	}

	timeout := time.After(sessionTimeout)
	for {
		select {
		case ev := <-events:
			if ev.State == zk.StateHasSession {
				go drain(events)
				return conn, nil
			}
		case <-timeout:
			conn.Close()
			return nil, fmt.Errorf("zookeeper session not established within %s", sessionTimeout)
		}
	}
}

func drain(events <-chan zk.Event) {
	for ev := range events {
		if ev.State == zk.StateExpired || ev.State == zk.StateDisconnected {
			logger.Ctx(context.Background()).Warn().Str("state", ev.State.String()).Msg("zookeeper session state changed")
		}
	}
}
