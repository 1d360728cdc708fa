// internal/service/reservation/interfaces/reservation_outcome_handler.go
package interfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"allocator/internal/pkg/logger"
	"allocator/internal/pkg/mq"
	"allocator/internal/service/reservation/domain"
)

// OutcomeKind 区分监听的是成功还是失败信号。
type OutcomeKind string

const (
	OutcomeReservationMade   OutcomeKind = "reservation-made"
	OutcomeReservationFailed OutcomeKind = "reservation-failed"
)

// ReservationOutcomeConsumerAdapter 监听预占结果信号并更新订单状态。
type ReservationOutcomeConsumerAdapter struct {
	reader         MessageReader
	topic          string
	kind           OutcomeKind
	sink           domain.OrderStateSink
	failureHandler FailureHandler
}

func NewReservationOutcomeConsumerAdapter(reader MessageReader, topic string, kind OutcomeKind, sink domain.OrderStateSink, failureHandler FailureHandler) *ReservationOutcomeConsumerAdapter {
	return &ReservationOutcomeConsumerAdapter{
		reader:         reader,
		topic:          topic,
		kind:           kind,
		sink:           sink,
		failureHandler: failureHandler,
	}
}

func (a *ReservationOutcomeConsumerAdapter) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Str("topic", a.topic).Str("kind", string(a.kind)).Msg("✅ Reservation outcome consumer started.")
	defer func() {
		_ = a.reader.Close()
		logger.Ctx(ctx).Info().Str("topic", a.topic).Msg("🛑 Reservation outcome consumer stopped.")
	}()

	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.Ctx(ctx).Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg)
		if err := a.processMessage(msgCtx, msg); err != nil {
			a.failureHandler.Handle(msgCtx, msg, err)
		}
		if err := a.reader.CommitMessages(context.WithoutCancel(ctx), msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("failed to commit messages")
		}
	}
}

func (a *ReservationOutcomeConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	switch a.kind {
	case OutcomeReservationMade:
		var event domain.ReservationMade
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		logger.Ctx(ctx).Info().Int64("order_id", event.OrderID).Msg("marking order reserved")
		return a.sink.MarkReserved(ctx, event.OrderID)
	case OutcomeReservationFailed:
		var event domain.ReservationFailed
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return err
		}
		logger.Ctx(ctx).Info().Int64("order_id", event.OrderID).Str("reason", event.Reason).Msg("marking order failed")
		return a.sink.MarkFailed(ctx, event.OrderID, event.Reason)
	default:
		return &domain.RoutingError{Request: fmt.Sprintf("outcome %q", a.kind)}
	}
}
