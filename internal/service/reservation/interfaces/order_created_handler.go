// internal/service/reservation/interfaces/order_created_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"allocator/internal/pkg/logger"
	"allocator/internal/pkg/mq"
	"allocator/internal/service/reservation/domain"
)

// OrderCreatedConsumerAdapter 监听 order-created 主题，每条消息驱动一次预占 saga。
// 并发 saga 的数量受 workers 限制。
type OrderCreatedConsumerAdapter struct {
	reader         MessageReader
	topic          string
	appSvc         ReservationRunner
	failureHandler FailureHandler
	dedup          Deduplicator

	sem chan struct{}
	wg  sync.WaitGroup
}

func NewOrderCreatedConsumerAdapter(reader MessageReader, topic string, appSvc ReservationRunner, failureHandler FailureHandler, workers int) *OrderCreatedConsumerAdapter {
	if workers <= 0 {
		workers = 1
	}
	return &OrderCreatedConsumerAdapter{
		reader:         reader,
		topic:          topic,
		appSvc:         appSvc,
		failureHandler: failureHandler,
		sem:            make(chan struct{}, workers),
	}
}

// WithDeduplicator 启用基于 offset 的去重。
func (a *OrderCreatedConsumerAdapter) WithDeduplicator(d Deduplicator) *OrderCreatedConsumerAdapter {
	a.dedup = d
	return a
}

// Run 持续消费直到 ctx 结束，返回前等待所有进行中的 saga 完成。
func (a *OrderCreatedConsumerAdapter) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Str("topic", a.topic).Int("workers", cap(a.sem)).Msg("✅ OrderCreated consumer started.")
	defer func() {
		a.wg.Wait()
		if err := a.reader.Close(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to close order-created reader")
		}
		logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("🛑 OrderCreated consumer stopped.")
	}()

	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-time.After(time.Second): // 避免快速失败循环
			case <-ctx.Done():
				return nil
			}
			continue
		}

		select {
		case a.sem <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		a.wg.Add(1)
		go func(msg kafka.Message) {
			defer a.wg.Done()
			defer func() { <-a.sem }()
			a.consume(ctx, msg)
		}(msg)
	}
}

func (a *OrderCreatedConsumerAdapter) consume(ctx context.Context, msg kafka.Message) {
	msgCtx := mq.ExtractTraceContext(ctx, msg)

	if a.dedup != nil {
		seen, err := a.dedup.Seen(msgCtx, a.dedup.Key(msg.Topic, msg.Partition, msg.Offset))
		if err != nil {
			logger.Ctx(msgCtx).Warn().Err(err).Msg("idempotency check failed, processing anyway")
		} else if seen {
			logger.Ctx(msgCtx).Info().Int64("offset", msg.Offset).Msg("duplicate order-created message skipped")
			a.commit(ctx, msg)
			return
		}
	}

	if err := a.processMessage(msgCtx, msg); err != nil {
		a.failureHandler.Handle(msgCtx, msg, err)
	}
	// 无论成功或失败（已移交死信），都提交 offset
	a.commit(ctx, msg)
}

func (a *OrderCreatedConsumerAdapter) commit(ctx context.Context, msg kafka.Message) {
	if err := a.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
		logger.Ctx(ctx).Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit message")
	}
}

// processMessage 反序列化消息并调用应用服务。
// 订单被中止属于已发出失败信号的业务结果，不算消息处理失败。
func (a *OrderCreatedConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.OrderCreated
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}

	outcome, err := a.appSvc.HandleOrderCreated(ctx, &event)
	if err != nil && outcome != nil && outcome.State == domain.StateAborted {
		logger.Ctx(ctx).Warn().Err(err).Int64("order_id", outcome.OrderID).Msg("order aborted")
		return nil
	}
	return err
}
