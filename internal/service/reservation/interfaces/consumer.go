package interfaces

import (
	"context"

	"github.com/segmentio/kafka-go"

	"allocator/internal/service/reservation/application"
	"allocator/internal/service/reservation/domain"
)

// MessageReader 是 *kafka.Reader 中消费者用到的方法。
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// FailureHandler 接收处理失败的消息。
type FailureHandler interface {
	Handle(ctx context.Context, msg kafka.Message, cause error)
}

// ReservationRunner 是预占应用服务的入口。
type ReservationRunner interface {
	HandleOrderCreated(ctx context.Context, event *domain.OrderCreated) (*application.Outcome, error)
}

// Deduplicator 判断消息是否已经处理过。
type Deduplicator interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
}
