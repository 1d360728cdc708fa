package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"allocator/internal/pkg/mq"
	"allocator/internal/service/reservation/domain"
	"allocator/internal/service/reservation/domain/port"
)

// EventKafkaAdapter 实现了 port.EventPublisher 接口，成功和失败信号各走一个主题。
type EventKafkaAdapter struct {
	madeWriter   mq.MessageWriter
	failedWriter mq.MessageWriter
}

func NewEventKafkaAdapter(madeWriter, failedWriter mq.MessageWriter) *EventKafkaAdapter {
	return &EventKafkaAdapter{madeWriter: madeWriter, failedWriter: failedWriter}
}

var _ port.EventPublisher = (*EventKafkaAdapter)(nil)

func (a *EventKafkaAdapter) PublishReservationMade(ctx context.Context, event *domain.ReservationMade) error {
	return a.publish(ctx, a.madeWriter, event.OrderID, event)
}

func (a *EventKafkaAdapter) PublishReservationFailed(ctx context.Context, event *domain.ReservationFailed) error {
	return a.publish(ctx, a.failedWriter, event.OrderID, event)
}

// 以订单 ID 为 key，保证同一订单的信号落在同一分区
func (a *EventKafkaAdapter) publish(ctx context.Context, writer mq.MessageWriter, orderID int64, event any) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", event, err)
	}
	return mq.ProduceMessage(ctx, writer, []byte(strconv.FormatInt(orderID, 10)), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *EventKafkaAdapter) Close() error {
	var firstErr error
	for _, w := range []mq.MessageWriter{a.madeWriter, a.failedWriter} {
		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
